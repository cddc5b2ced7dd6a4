package audit

import (
	"context"
	"errors"

	"cosmo-migrator/internal/migration/domain/model"
	"cosmo-migrator/internal/migration/domain/repository"
)

// Header is the column layout shared by the tabular reports.
var Header = []string{"RESOURCE", "ID", "NEW_ID", "STATUS", "DETAIL", "ORGANIZATION_ID", "WORKSPACE_ID", "SCENARIO_ID"}

// Row renders rec in Header order.
func Row(rec model.AuditRecord) []string {
	return []string{
		string(rec.Kind),
		rec.OldID,
		rec.NewID,
		string(rec.Status),
		rec.Detail,
		rec.Scope.OrganizationID,
		rec.Scope.WorkspaceID,
		rec.Scope.ScenarioID,
	}
}

// MultiSink fans every record out to several sinks.
type MultiSink struct {
	sinks []repository.AuditSink
}

// NewMultiSink skips nil sinks.
func NewMultiSink(sinks ...repository.AuditSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Record delivers rec to every sink, even when one of them fails.
func (m *MultiSink) Record(ctx context.Context, rec model.AuditRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len is the number of wrapped sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }
