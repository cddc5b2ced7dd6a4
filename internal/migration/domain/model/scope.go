package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scope is the ancestor-identifier context needed to address a set of child
// entities. Source scopes carry old ids, destination scopes new ones.
type Scope struct {
	OrganizationID string `json:"organizationId,omitempty"`
	WorkspaceID    string `json:"workspaceId,omitempty"`
	ScenarioID     string `json:"scenarioId,omitempty"`
}

// String renders the scope as a path, e.g. "o-1/w-1".
func (s Scope) String() string {
	parts := make([]string, 0, 3)
	for _, id := range []string{s.OrganizationID, s.WorkspaceID, s.ScenarioID} {
		if id != "" {
			parts = append(parts, id)
		}
	}
	if len(parts) == 0 {
		return "/"
	}
	return strings.Join(parts, "/")
}

// ScopeFromRecord derives a scope from the foreign-key fields a record carries.
func ScopeFromRecord(r Record) Scope {
	return Scope{
		OrganizationID: r.GetString("organizationId"),
		WorkspaceID:    r.GetString("workspaceId"),
		ScenarioID:     r.GetString("scenarioId"),
	}
}

// Mapping is one identity mapping entry.
type Mapping struct {
	Kind  Kind   `json:"kind"`
	OldID string `json:"oldId"`
	NewID string `json:"newId"`
}

// AuditStatus is the outcome of one entity in a run.
type AuditStatus string

const (
	AuditMigrated AuditStatus = "MIGRATED"
	AuditSkipped  AuditStatus = "SKIPPED"
	AuditFailed   AuditStatus = "FAILED"
	AuditFiltered AuditStatus = "FILTERED"
)

// AuditRecord is one row of the migration report.
type AuditRecord struct {
	Kind      Kind        `json:"kind"`
	OldID     string      `json:"oldId"`
	NewID     string      `json:"newId,omitempty"`
	Status    AuditStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	Scope     Scope       `json:"scope"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewID mints an identifier for kind k in the platform's "<prefix>-<random>" form.
func NewID(k Kind) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return k.IDPrefix() + "-" + raw[:10]
}
