package audit

import (
	"context"

	"cosmo-migrator/internal/migration/domain/model"
	"cosmo-migrator/internal/shared/eventbus"
)

const busSource = "audit"

// BusSink republishes records on the event bus: migrated entities as
// EventTypeEntityMigrated, every other outcome as EventTypeEntitySkipped.
type BusSink struct {
	bus eventbus.EventBusInterface
}

func NewBusSink(bus eventbus.EventBusInterface) *BusSink {
	return &BusSink{bus: bus}
}

func (s *BusSink) Record(ctx context.Context, rec model.AuditRecord) error {
	eventType := eventbus.EventTypeEntitySkipped
	if rec.Status == model.AuditMigrated {
		eventType = eventbus.EventTypeEntityMigrated
	}
	return s.bus.Publish(ctx, eventbus.NewEvent(eventType, rec, busSource))
}

func (s *BusSink) Close() error { return nil }
