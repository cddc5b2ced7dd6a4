package http

import (
	"context"
	"sort"
	"sync"
	"time"

	"cosmo-migrator/internal/migration/domain/model"
	"cosmo-migrator/internal/migration/usecase"
	"cosmo-migrator/internal/shared/eventbus"
)

// KindProgress counts outcomes for one kind.
type KindProgress struct {
	Kind   model.Kind                `json:"kind"`
	Counts map[model.AuditStatus]int `json:"counts"`
}

// Snapshot is the body of GET /status.
type Snapshot struct {
	RunID     string             `json:"runId,omitempty"`
	State     usecase.RunState   `json:"state,omitempty"`
	Scope     model.Scope        `json:"scope"`
	StartedAt *time.Time         `json:"startedAt,omitempty"`
	Kinds     []KindProgress     `json:"kinds"`
	Last      *model.AuditRecord `json:"last,omitempty"`
	Report    *usecase.Report    `json:"report,omitempty"`
}

// Tracker folds bus events into the current run status.
type Tracker struct {
	mu        sync.RWMutex
	runID     string
	state     usecase.RunState
	scope     model.Scope
	startedAt *time.Time
	counts    map[model.Kind]map[model.AuditStatus]int
	last      *model.AuditRecord
	report    *usecase.Report
	subs      []eventbus.Subscription
	bus       eventbus.EventBusInterface
}

// NewTracker subscribes to bus. Call Stop to unsubscribe.
func NewTracker(bus eventbus.EventBusInterface) *Tracker {
	t := &Tracker{bus: bus, counts: make(map[model.Kind]map[model.AuditStatus]int)}
	t.subs = []eventbus.Subscription{
		bus.Subscribe(eventbus.EventTypeEntityMigrated, t.onEntity),
		bus.Subscribe(eventbus.EventTypeEntitySkipped, t.onEntity),
		bus.Subscribe(eventbus.EventTypeStateChanged, t.onState),
		bus.Subscribe(eventbus.EventTypeRunCompleted, t.onCompleted),
	}
	return t
}

// Stop unsubscribes from the bus.
func (t *Tracker) Stop() {
	for _, sub := range t.subs {
		t.bus.Unsubscribe(sub)
	}
}

func (t *Tracker) onEntity(ctx context.Context, e eventbus.Event) error {
	rec, ok := e.Data.(model.AuditRecord)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	byStatus, ok := t.counts[rec.Kind]
	if !ok {
		byStatus = make(map[model.AuditStatus]int)
		t.counts[rec.Kind] = byStatus
	}
	byStatus[rec.Status]++
	t.last = &rec
	return nil
}

func (t *Tracker) onState(ctx context.Context, e eventbus.Event) error {
	change, ok := e.Data.(usecase.StateChange)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if change.To == usecase.StateStart {
		started := e.Timestamp
		t.startedAt = &started
	}
	t.runID = change.RunID
	t.state = change.To
	t.scope = change.Scope
	return nil
}

func (t *Tracker) onCompleted(ctx context.Context, e eventbus.Event) error {
	report, ok := e.Data.(*usecase.Report)
	if !ok {
		return nil
	}
	t.SetReport(report)
	return nil
}

// SetReport records the final report of a run that did not publish one.
func (t *Tracker) SetReport(report *usecase.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report = report
	t.runID = report.RunID
	t.state = report.State
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	kinds := make([]model.Kind, 0, len(t.counts))
	for k := range t.counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Rank() < kinds[j].Rank() })

	s := Snapshot{
		RunID:     t.runID,
		State:     t.state,
		Scope:     t.scope,
		StartedAt: t.startedAt,
		Kinds:     make([]KindProgress, 0, len(kinds)),
		Last:      t.last,
		Report:    t.report,
	}
	for _, k := range kinds {
		counts := make(map[model.AuditStatus]int, len(t.counts[k]))
		for st, n := range t.counts[k] {
			counts[st] = n
		}
		s.Kinds = append(s.Kinds, KindProgress{Kind: k, Counts: counts})
	}
	return s
}
