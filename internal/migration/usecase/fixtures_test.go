package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"cosmo-migrator/internal/migration/adapter/persistence/memory"
	"cosmo-migrator/internal/migration/domain/model"
	"cosmo-migrator/internal/migration/domain/repository"
	"cosmo-migrator/internal/migration/usecase"

	"github.com/stretchr/testify/require"
)

// sequentialIDs mints "<prefix>-new-<n>" identifiers.
func sequentialIDs() func(model.Kind) string {
	var mu sync.Mutex
	counters := make(map[model.Kind]int)
	return func(k model.Kind) string {
		mu.Lock()
		defer mu.Unlock()
		counters[k]++
		return fmt.Sprintf("%s-new-%d", k.IDPrefix(), counters[k])
	}
}

func newDestination() *memory.Store {
	return memory.NewStore("").WithIDFactory(sequentialIDs())
}

func seed(t *testing.T, store *memory.Store, kind model.Kind, docs ...model.Record) {
	t.Helper()
	require.NoError(t, store.Seed(kind, docs...))
}

// fullTree seeds one of every kind under o-1, plus a dataset without a connector.
func fullTree(t *testing.T) *memory.Store {
	source := memory.NewStore(repository.IDStrategyPreserve)
	seed(t, source, model.KindConnector, model.Record{"id": "c-1", "key": "adt"})
	seed(t, source, model.KindOrganization, model.Record{"id": "o-1", "name": "Org", "_etag": "x"})
	seed(t, source, model.KindSolution, model.Record{
		"id":             "sol-1",
		"organizationId": "o-1",
		"creationDate":   "2023-01-15T10:30:00.123456Z",
		"_rid":           "r1",
	})
	seed(t, source, model.KindDataset,
		model.Record{"id": "d-1", "organizationId": "o-1", "connector": map[string]interface{}{"id": "c-1"}},
		model.Record{"id": "d-2", "organizationId": "o-1"},
	)
	seed(t, source, model.KindWorkspace, model.Record{
		"id":             "w-1",
		"organizationId": "o-1",
		"solution":       map[string]interface{}{"solutionId": "sol-1"},
	})
	seed(t, source, model.KindScenario, model.Record{
		"id":             "s-1",
		"organizationId": "o-1",
		"workspaceId":    "w-1",
		"solutionId":     "sol-1",
		"datasetList":    []interface{}{"d-1", "d-unknown"},
	})
	seed(t, source, model.KindScenarioRun, model.Record{
		"id":             "sr-1",
		"organizationId": "o-1",
		"workspaceId":    "w-1",
		"scenarioId":     "s-1",
		"solutionId":     "sol-1",
	})
	return source
}

type recordingAudit struct {
	mu      sync.Mutex
	records []model.AuditRecord
	closed  bool
}

func (a *recordingAudit) Record(_ context.Context, rec model.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *recordingAudit) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *recordingAudit) withStatus(status model.AuditStatus) []model.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.AuditRecord, 0)
	for _, rec := range a.records {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out
}

func newOrchestrator(source *memory.Store, dest *memory.Store, audit *recordingAudit, config usecase.OrchestratorConfig) *usecase.Orchestrator {
	return usecase.NewOrchestrator(usecase.MigratorDeps{
		Source: source,
		Dest:   dest,
		Audit:  audit,
	}, nil, config)
}

func mappingFor(t *testing.T, report *usecase.Report, kind model.Kind, oldID string) string {
	t.Helper()
	for _, m := range report.Mappings {
		if m.Kind == kind && m.OldID == oldID {
			return m.NewID
		}
	}
	t.Fatalf("no mapping for %s %s", kind, oldID)
	return ""
}

// assertParentsWrittenFirst checks that every required reference of every
// written entity points at an entity written earlier.
func assertParentsWrittenFirst(t *testing.T, dest *memory.Store) {
	t.Helper()
	written := make(map[model.Kind]map[string]bool)
	for _, w := range dest.Writes() {
		stored, ok := dest.Get(w.Kind, w.NewID)
		require.True(t, ok)
		for _, ref := range usecase.ReferencesFor(w.Kind) {
			if !ref.Required {
				continue
			}
			target := stored.Fields.GetString(ref.Field)
			require.True(t, written[ref.Kind][target],
				"%s %s written before its %s %s", w.Kind, w.OldID, ref.Kind, target)
		}
		if written[w.Kind] == nil {
			written[w.Kind] = make(map[string]bool)
		}
		written[w.Kind][w.NewID] = true
	}
}
