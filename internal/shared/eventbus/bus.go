package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cosmo-migrator/internal/shared/logger"
)

// Event types published during a migration run
const (
	EventTypeEntityMigrated = "entity.migrated"
	EventTypeEntitySkipped  = "entity.skipped"
	EventTypeStateChanged   = "run.state_changed"
	EventTypeRunCompleted   = "run.completed"
)

// Event is a single notification flowing through the bus.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Source    string      `json:"source"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, data interface{}, source string) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

// Handler defines the event handler function type
type Handler func(ctx context.Context, event Event) error

// Subscription identifies one registered handler.
type Subscription uint64

// EventBusInterface defines the contract for event bus implementations
type EventBusInterface interface {
	Subscribe(eventType string, handler Handler) Subscription
	SubscribeAll(handler Handler) Subscription
	Unsubscribe(sub Subscription)
	Publish(ctx context.Context, event Event) error
	SubscriberCount(eventType string) int
}

type registration struct {
	id        Subscription
	eventType string // empty means every type
	handler   Handler
}

// EventBus is an in-memory, synchronous-by-default event bus.
type EventBus struct {
	mu     sync.RWMutex
	nextID Subscription
	subs   []registration
	logger logger.Logger
	config BusConfig
}

// BusConfig holds configuration for the event bus
type BusConfig struct {
	AsyncProcessing bool
	MaxRetries      int
	RetryDelay      time.Duration
}

// DefaultBusConfig returns default configuration
func DefaultBusConfig() BusConfig {
	return BusConfig{
		AsyncProcessing: false,
		MaxRetries:      0,
		RetryDelay:      100 * time.Millisecond,
	}
}

// NewEventBus creates a new event bus instance
func NewEventBus(log logger.Logger) *EventBus {
	return NewEventBusWithConfig(log, DefaultBusConfig())
}

// NewEventBusWithConfig creates a new event bus with custom configuration
func NewEventBusWithConfig(log logger.Logger, config BusConfig) *EventBus {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &EventBus{
		logger: log,
		config: config,
	}
}

// Subscribe adds a handler for a specific event type
func (eb *EventBus) Subscribe(eventType string, handler Handler) Subscription {
	return eb.add(eventType, handler)
}

// SubscribeAll adds a handler receiving every event.
func (eb *EventBus) SubscribeAll(handler Handler) Subscription {
	return eb.add("", handler)
}

func (eb *EventBus) add(eventType string, handler Handler) Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	eb.subs = append(eb.subs, registration{id: eb.nextID, eventType: eventType, handler: handler})
	eb.logger.Debugf("Subscribed handler %d for event type %q", eb.nextID, eventType)
	return eb.nextID
}

// Unsubscribe removes a single handler.
func (eb *EventBus) Unsubscribe(sub Subscription) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, r := range eb.subs {
		if r.id == sub {
			eb.subs = append(eb.subs[:i], eb.subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of handlers that would receive eventType.
func (eb *EventBus) SubscriberCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.matching(eventType))
}

func (eb *EventBus) matching(eventType string) []Handler {
	var handlers []Handler
	for _, r := range eb.subs {
		if r.eventType == "" || r.eventType == eventType {
			handlers = append(handlers, r.handler)
		}
	}
	return handlers
}

// Publish sends an event to all registered handlers
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	handlers := eb.matching(event.Type)
	eb.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	if eb.config.AsyncProcessing {
		return eb.publishAsync(ctx, event, handlers)
	}
	for i, handler := range handlers {
		if err := eb.executeHandler(ctx, event, handler, i); err != nil {
			return err
		}
	}
	return nil
}

func (eb *EventBus) publishAsync(ctx context.Context, event Event, handlers []Handler) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(handlers))

	for i, handler := range handlers {
		wg.Add(1)
		go func(h Handler, idx int) {
			defer wg.Done()
			if err := eb.executeHandler(ctx, event, h, idx); err != nil {
				errCh <- err
			}
		}(handler, i)
	}

	wg.Wait()
	close(errCh)

	if err, ok := <-errCh; ok {
		return err
	}
	return nil
}

// executeHandler executes a handler with retry logic
func (eb *EventBus) executeHandler(ctx context.Context, event Event, handler Handler, handlerIndex int) error {
	var lastErr error

	for attempt := 0; attempt <= eb.config.MaxRetries; attempt++ {
		if attempt > 0 {
			eb.logger.Warnf("Retrying handler %d for event %s (attempt %d/%d)",
				handlerIndex, event.Type, attempt+1, eb.config.MaxRetries+1)
			time.Sleep(eb.config.RetryDelay)
		}

		if err := handler(ctx, event); err != nil {
			lastErr = err
			eb.logger.Errorf("Handler %d failed for event %s: %v", handlerIndex, event.Type, err)
			continue
		}
		return nil
	}

	return fmt.Errorf("handler failed after %d attempts: %w", eb.config.MaxRetries+1, lastErr)
}
