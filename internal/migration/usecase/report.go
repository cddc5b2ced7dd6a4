package usecase

import (
	"time"

	"cosmo-migrator/internal/migration/domain/model"
)

// Report summarizes a finished run.
type Report struct {
	RunID      string          `json:"runId"`
	State      RunState        `json:"state"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Migrated   int             `json:"migrated"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	Filtered   int             `json:"filtered"`
	Counts     []KindCount     `json:"counts"`
	Mappings   []model.Mapping `json:"mappings"`
	Error      string          `json:"error,omitempty"`
}

// NewReport snapshots mc.
func NewReport(mc *MigrationContext, startedAt time.Time, runErr error) *Report {
	r := &Report{
		RunID:      mc.RunID,
		State:      mc.State(),
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Migrated:   mc.Total(model.AuditMigrated),
		Skipped:    mc.Total(model.AuditSkipped),
		Failed:     mc.Total(model.AuditFailed),
		Filtered:   mc.Total(model.AuditFiltered),
		Counts:     mc.Counts(),
		Mappings:   mc.Identities.Entries(),
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

// Incomplete reports whether any entity was skipped or failed.
func (r *Report) Incomplete() bool {
	return r.Skipped > 0 || r.Failed > 0
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
