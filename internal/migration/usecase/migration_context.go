package usecase

import (
	"sort"
	"sync"

	"cosmo-migrator/internal/migration/domain/model"
)

// RunState is a step of the orchestrator's traversal.
type RunState string

const (
	StateStart            RunState = "Start"
	StateConnectorsDone   RunState = "ConnectorsDone"
	StateOrgCreated       RunState = "OrgCreated"
	StateSolutionsDone    RunState = "SolutionsDone"
	StateDatasetsDone     RunState = "DatasetsDone"
	StateWorkspaceCreated RunState = "WorkspaceCreated"
	StateScenarioCreated  RunState = "ScenarioCreated"
	StateScenarioRunsDone RunState = "ScenarioRunsDone"
	StateComplete         RunState = "Complete"
)

// Transition is one recorded state change.
type Transition struct {
	State RunState    `json:"state"`
	Scope model.Scope `json:"scope"`
}

// MigrationContext is the state of one run: the identity map, where the
// traversal currently is, and per-kind outcome counters. It is created by the
// orchestrator and shared by pointer with every migrator.
type MigrationContext struct {
	RunID      string
	Identities *model.IdentityMap

	mu          sync.Mutex
	state       RunState
	cursor      model.Scope
	transitions []Transition
	counts      map[model.Kind]map[model.AuditStatus]int
}

// NewMigrationContext starts a run in StateStart.
func NewMigrationContext(runID string) *MigrationContext {
	return &MigrationContext{
		RunID:       runID,
		Identities:  model.NewIdentityMap(),
		state:       StateStart,
		transitions: []Transition{{State: StateStart}},
		counts:      make(map[model.Kind]map[model.AuditStatus]int),
	}
}

// Advance moves the run to state at scope and returns the previous state.
func (c *MigrationContext) Advance(state RunState, scope model.Scope) RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous := c.state
	c.state = state
	c.cursor = scope
	c.transitions = append(c.transitions, Transition{State: state, Scope: scope})
	return previous
}

// State returns the current state.
func (c *MigrationContext) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cursor returns the scope of the last transition.
func (c *MigrationContext) Cursor() model.Scope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Transitions returns a copy of the recorded state history.
func (c *MigrationContext) Transitions() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Transition(nil), c.transitions...)
}

// Count records one entity outcome.
func (c *MigrationContext) Count(kind model.Kind, status model.AuditStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byStatus, ok := c.counts[kind]
	if !ok {
		byStatus = make(map[model.AuditStatus]int)
		c.counts[kind] = byStatus
	}
	byStatus[status]++
}

// KindCount is the outcome tally of one kind.
type KindCount struct {
	Kind     model.Kind `json:"kind"`
	Migrated int        `json:"migrated"`
	Skipped  int        `json:"skipped"`
	Failed   int        `json:"failed"`
	Filtered int        `json:"filtered"`
}

// Counts returns the tallies ordered by migration rank.
func (c *MigrationContext) Counts() []KindCount {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]KindCount, 0, len(c.counts))
	for kind, byStatus := range c.counts {
		out = append(out, KindCount{
			Kind:     kind,
			Migrated: byStatus[model.AuditMigrated],
			Skipped:  byStatus[model.AuditSkipped],
			Failed:   byStatus[model.AuditFailed],
			Filtered: byStatus[model.AuditFiltered],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if ri, rj := out[i].Kind.Rank(), out[j].Kind.Rank(); ri != rj {
			return ri < rj
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Total sums one status across kinds.
func (c *MigrationContext) Total(status model.AuditStatus) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, byStatus := range c.counts {
		total += byStatus[status]
	}
	return total
}
