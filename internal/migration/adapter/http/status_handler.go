package http

import (
	"context"

	"cosmo-migrator/internal/shared/eventbus"
	"cosmo-migrator/internal/shared/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const progressBuffer = 64

// WebSocketMessage is one frame sent on /ws/progress.
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// StatusHandler serves run status, metrics and a live progress feed.
type StatusHandler struct {
	tracker  *Tracker
	bus      eventbus.EventBusInterface
	registry *prometheus.Registry
	log      logger.Logger
}

// NewStatusHandler creates a StatusHandler. registry may be nil, in which
// case /metrics is not registered.
func NewStatusHandler(tracker *Tracker, bus eventbus.EventBusInterface, registry *prometheus.Registry, log logger.Logger) *StatusHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &StatusHandler{tracker: tracker, bus: bus, registry: registry, log: log.WithComponent("status")}
}

// RegisterRoutes registers the status endpoints.
func (h *StatusHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	router.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(h.tracker.Snapshot())
	})
	if h.registry != nil {
		router.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))
	}

	wsGroup := router.Group("/ws")
	wsGroup.Use("/progress", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	wsGroup.Get("/progress", websocket.New(h.streamProgress))
}

// streamProgress sends the current snapshot, then every bus event until the
// client disconnects.
func (h *StatusHandler) streamProgress(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientID := uuid.NewString()
	log := h.log.WithFields(map[string]interface{}{"client": clientID})
	log.Debug("progress client connected")
	defer log.Debug("progress client disconnected")

	events := make(chan eventbus.Event, progressBuffer)
	sub := h.bus.SubscribeAll(func(_ context.Context, e eventbus.Event) error {
		select {
		case events <- e:
		default:
			log.Warnf("dropping %s event for slow progress client", e.Type)
		}
		return nil
	})
	defer h.bus.Unsubscribe(sub)

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(WebSocketMessage{Type: "snapshot", Data: h.tracker.Snapshot()}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			if err := conn.WriteJSON(WebSocketMessage{Type: e.Type, Data: e.Data}); err != nil {
				log.Debugf("progress write failed: %v", err)
				return
			}
		}
	}
}
