package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"cosmo-migrator/internal/migration/adapter/persistence/memory"
	"cosmo-migrator/internal/migration/domain/model"
	"cosmo-migrator/internal/migration/domain/repository"
	"cosmo-migrator/internal/migration/domain/service"
	"cosmo-migrator/internal/migration/usecase"
	"cosmo-migrator/internal/shared/eventbus"
	"cosmo-migrator/internal/shared/logger"
	"cosmo-migrator/internal/shared/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOrchestrator_MinimalTree(t *testing.T) {
	source := memory.NewStore(repository.IDStrategyPreserve)
	seed(t, source, model.KindOrganization, model.Record{"id": "o-1"})
	seed(t, source, model.KindSolution, model.Record{"id": "sol-1", "organizationId": "o-1"})
	seed(t, source, model.KindWorkspace, model.Record{
		"id":             "w-1",
		"organizationId": "o-1",
		"solution":       map[string]interface{}{"solutionId": "sol-1"},
	})
	dest := newDestination()

	report, err := newOrchestrator(source, dest, &recordingAudit{}, usecase.DefaultOrchestratorConfig()).Run(context.Background(), "run-1")
	require.NoError(t, err)

	require.Len(t, report.Mappings, 3)
	assert.Equal(t, model.Mapping{Kind: model.KindOrganization, OldID: "o-1", NewID: "o-new-1"}, report.Mappings[0])
	assert.Equal(t, model.Mapping{Kind: model.KindSolution, OldID: "sol-1", NewID: "sol-new-1"}, report.Mappings[1])
	assert.Equal(t, model.Mapping{Kind: model.KindWorkspace, OldID: "w-1", NewID: "w-new-1"}, report.Mappings[2])

	ws, ok := dest.Get(model.KindWorkspace, "w-new-1")
	require.True(t, ok)
	assert.Equal(t, "o-new-1", ws.Fields.GetString("organizationId"))
	assert.Equal(t, "sol-new-1", ws.Fields.GetString("solution.solutionId"))
	assert.Equal(t, "w-new-1", ws.Fields.GetString("id"))

	assert.Equal(t, usecase.StateComplete, report.State)
	assert.Equal(t, 3, report.Migrated)
	assert.False(t, report.Incomplete())
}

func TestOrchestrator_FullTree(t *testing.T) {
	source := fullTree(t)
	dest := newDestination()
	audit := &recordingAudit{}
	mc := usecase.NewMigrationContext("run-full")

	report, err := newOrchestrator(source, dest, audit, usecase.DefaultOrchestratorConfig()).Execute(context.Background(), mc)
	require.NoError(t, err)

	assert.Equal(t, 7, report.Migrated)
	assert.Equal(t, 1, report.Skipped, "dataset without connector")
	assert.True(t, report.Incomplete())

	states := make([]usecase.RunState, 0)
	for _, tr := range mc.Transitions() {
		states = append(states, tr.State)
	}
	assert.Equal(t, []usecase.RunState{
		usecase.StateStart,
		usecase.StateConnectorsDone,
		usecase.StateOrgCreated,
		usecase.StateSolutionsDone,
		usecase.StateDatasetsDone,
		usecase.StateWorkspaceCreated,
		usecase.StateScenarioCreated,
		usecase.StateScenarioRunsDone,
		usecase.StateComplete,
	}, states)

	solution, ok := dest.Get(model.KindSolution, mappingFor(t, report, model.KindSolution, "sol-1"))
	require.True(t, ok)
	assert.Equal(t, int64(1673778600123), solution.Fields["creationDate"])
	assert.NotContains(t, solution.Fields, "_rid")

	dataset, ok := dest.Get(model.KindDataset, mappingFor(t, report, model.KindDataset, "d-1"))
	require.True(t, ok)
	assert.Equal(t, mappingFor(t, report, model.KindConnector, "c-1"), dataset.Fields.GetString("connector.id"))

	scenario, ok := dest.Get(model.KindScenario, mappingFor(t, report, model.KindScenario, "s-1"))
	require.True(t, ok)
	assert.Equal(t, []interface{}{mappingFor(t, report, model.KindDataset, "d-1"), "d-unknown"}, scenario.Fields["datasetList"])
	assert.Equal(t, mappingFor(t, report, model.KindWorkspace, "w-1"), scenario.Fields.GetString("workspaceId"))

	run, ok := dest.Get(model.KindScenarioRun, mappingFor(t, report, model.KindScenarioRun, "sr-1"))
	require.True(t, ok)
	assert.Equal(t, scenario.ID, run.Fields.GetString("scenarioId"))

	skipped := audit.withStatus(model.AuditSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, "d-2", skipped[0].OldID)
	assert.Contains(t, skipped[0].Detail, "connector.id")

	assertParentsWrittenFirst(t, dest)
}

func TestOrchestrator_MissingReferenceSkipsOnlyTheEntity(t *testing.T) {
	source := memory.NewStore(repository.IDStrategyPreserve)
	seed(t, source, model.KindOrganization, model.Record{"id": "o-1"}, model.Record{"id": "o-2"})
	seed(t, source, model.KindSolution,
		model.Record{"id": "sol-1", "organizationId": "o-1"},
		model.Record{"id": "sol-2", "organizationId": "o-2"},
	)
	seed(t, source, model.KindWorkspace,
		model.Record{"id": "w-1", "organizationId": "o-1", "solution": map[string]interface{}{"solutionId": "sol-999"}},
		model.Record{"id": "w-2", "organizationId": "o-2", "solution": map[string]interface{}{"solutionId": "sol-2"}},
	)
	dest := newDestination()

	core, logs := observer.New(zapcore.WarnLevel)
	orchestrator := usecase.NewOrchestrator(usecase.MigratorDeps{
		Source: source,
		Dest:   dest,
		Logger: logger.NewZapLogger(zap.New(core)),
	}, nil, usecase.DefaultOrchestratorConfig())

	report, err := orchestrator.Run(context.Background(), "run-missing")
	require.NoError(t, err)

	workspaces := dest.Entities(model.KindWorkspace)
	require.Len(t, workspaces, 1)
	assert.Equal(t, mappingFor(t, report, model.KindSolution, "sol-2"), workspaces[0].Fields.GetString("solution.solutionId"))

	warnings := logs.FilterMessageSnippet("references unmigrated")
	require.Equal(t, 1, warnings.Len())
	assert.Contains(t, warnings.All()[0].Message, "w-1")
	assert.Equal(t, 2, len(dest.Entities(model.KindSolution)))
}

func TestMigrators_WorkspacesBeforeSolutionsLoseTheirReferences(t *testing.T) {
	source := memory.NewStore(repository.IDStrategyPreserve)
	seed(t, source, model.KindOrganization, model.Record{"id": "o-1"})
	seed(t, source, model.KindSolution, model.Record{"id": "sol-1", "organizationId": "o-1"})
	seed(t, source, model.KindWorkspace, model.Record{
		"id": "w-1", "organizationId": "o-1", "solution": map[string]interface{}{"solutionId": "sol-1"},
	})
	orgScope := model.Scope{OrganizationID: "o-1"}
	ctx := context.Background()

	run := func(order ...model.Kind) (*memory.Store, *observer.ObservedLogs, map[model.Kind][]model.Mapping) {
		dest := newDestination()
		core, logs := observer.New(zapcore.WarnLevel)
		orchestrator := usecase.NewOrchestrator(usecase.MigratorDeps{
			Source: source,
			Dest:   dest,
			Logger: logger.NewZapLogger(zap.New(core)),
		}, nil, usecase.DefaultOrchestratorConfig())
		mc := usecase.NewMigrationContext("run-order")

		created := make(map[model.Kind][]model.Mapping)
		for _, kind := range order {
			scope := orgScope
			if kind == model.KindOrganization {
				scope = model.Scope{}
			}
			mappings, err := orchestrator.Migrator(kind).MigrateAll(ctx, mc, scope)
			require.NoError(t, err)
			created[kind] = append(created[kind], mappings...)
		}
		return dest, logs, created
	}

	t.Run("reversed order", func(t *testing.T) {
		dest, logs, _ := run(model.KindOrganization, model.KindWorkspace, model.KindSolution)

		assert.Empty(t, dest.Entities(model.KindWorkspace))
		assert.Len(t, dest.Entities(model.KindSolution), 1)
		warnings := logs.FilterMessageSnippet("references unmigrated")
		require.Equal(t, 1, warnings.Len())
		assert.Contains(t, warnings.All()[0].Message, "w-1")
	})

	t.Run("dependency order", func(t *testing.T) {
		dest, logs, created := run(model.KindOrganization, model.KindSolution, model.KindWorkspace)

		require.Len(t, created[model.KindSolution], 1)
		solutionID := created[model.KindSolution][0].NewID
		_, ok := dest.Get(model.KindSolution, solutionID)
		require.True(t, ok)

		workspaces := dest.Entities(model.KindWorkspace)
		require.Len(t, workspaces, 1)
		assert.Equal(t, solutionID, workspaces[0].Fields.GetString("solution.solutionId"))
		assert.NotEqual(t, "sol-1", solutionID)
		assert.Equal(t, 0, logs.FilterMessageSnippet("references unmigrated").Len())
	})
}

func TestOrchestrator_ScenariosBranchedFromLaterParents(t *testing.T) {
	source := memory.NewStore(repository.IDStrategyPreserve)
	seed(t, source, model.KindOrganization, model.Record{"id": "o-1"})
	seed(t, source, model.KindSolution, model.Record{"id": "sol-1", "organizationId": "o-1"})
	seed(t, source, model.KindWorkspace, model.Record{
		"id": "w-1", "organizationId": "o-1", "solution": map[string]interface{}{"solutionId": "sol-1"},
	})
	scenario := func(id, parent string) model.Record {
		r := model.Record{"id": id, "organizationId": "o-1", "workspaceId": "w-1", "solutionId": "sol-1"}
		if parent != "" {
			r["parentId"] = parent
			r["rootId"] = "s-1"
		}
		return r
	}
	// children listed before their parents
	seed(t, source, model.KindScenario, scenario("s-3", "s-2"), scenario("s-2", "s-1"), scenario("s-1", ""))
	dest := newDestination()

	report, err := newOrchestrator(source, dest, &recordingAudit{}, usecase.DefaultOrchestratorConfig()).Run(context.Background(), "run-order")
	require.NoError(t, err)

	order := make([]string, 0)
	for _, w := range dest.Writes() {
		if w.Kind == model.KindScenario {
			order = append(order, w.OldID)
		}
	}
	assert.Equal(t, []string{"s-1", "s-2", "s-3"}, order)

	s3, ok := dest.Get(model.KindScenario, mappingFor(t, report, model.KindScenario, "s-3"))
	require.True(t, ok)
	assert.Equal(t, mappingFor(t, report, model.KindScenario, "s-2"), s3.Fields.GetString("parentId"))
	assert.Equal(t, mappingFor(t, report, model.KindScenario, "s-1"), s3.Fields.GetString("rootId"))
	assertParentsWrittenFirst(t, dest)
}

func TestOrchestrator_SingleOrganization(t *testing.T) {
	source := memory.NewStore(repository.IDStrategyPreserve)
	seed(t, source, model.KindOrganization, model.Record{"id": "o-1"}, model.Record{"id": "o-2"})
	seed(t, source, model.KindSolution,
		model.Record{"id": "sol-1", "organizationId": "o-1"},
		model.Record{"id": "sol-2", "organizationId": "o-2"},
	)

	config := usecase.DefaultOrchestratorConfig()
	config.OrganizationID = "o-2"
	dest := newDestination()
	report, err := newOrchestrator(source, dest, &recordingAudit{}, config).Run(context.Background(), "run-single")
	require.NoError(t, err)

	require.Len(t, report.Mappings, 2)
	assert.Equal(t, "o-2", report.Mappings[0].OldID)
	assert.Equal(t, "sol-2", report.Mappings[1].OldID)

	config.OrganizationID = "o-404"
	report, err = newOrchestrator(source, newDestination(), &recordingAudit{}, config).Run(context.Background(), "run-unknown")
	require.NoError(t, err)
	assert.Empty(t, report.Mappings)
	assert.Equal(t, usecase.StateComplete, report.State)
}

func TestOrchestrator_Toggles(t *testing.T) {
	config := usecase.DefaultOrchestratorConfig()
	config.MigrateDatasets = false
	config.MigrateScenarioRuns = false
	dest := newDestination()
	mc := usecase.NewMigrationContext("run-toggles")

	report, err := newOrchestrator(fullTree(t), dest, &recordingAudit{}, config).Execute(context.Background(), mc)
	require.NoError(t, err)

	assert.Empty(t, dest.Entities(model.KindDataset))
	assert.Empty(t, dest.Entities(model.KindScenarioRun))

	scenario, ok := dest.Get(model.KindScenario, mappingFor(t, report, model.KindScenario, "s-1"))
	require.True(t, ok)
	assert.Equal(t, []interface{}{"d-1", "d-unknown"}, scenario.Fields["datasetList"])

	for _, tr := range mc.Transitions() {
		assert.NotEqual(t, usecase.StateDatasetsDone, tr.State)
		assert.NotEqual(t, usecase.StateScenarioRunsDone, tr.State)
	}
}

func TestOrchestrator_FetchFailureIsTreatedAsEmpty(t *testing.T) {
	source := fullTree(t)
	source.FailList(model.KindSolution, errors.New("container unavailable"))
	core, logs := observer.New(zapcore.WarnLevel)
	m := metrics.New()

	report, err := usecase.NewOrchestrator(usecase.MigratorDeps{
		Source:  source,
		Dest:    newDestination(),
		Logger:  logger.NewZapLogger(zap.New(core)),
		Metrics: m,
	}, nil, usecase.DefaultOrchestratorConfig()).Run(context.Background(), "run-fetch")
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessageSnippet("cannot list Solution").Len())
	// nothing below the solutions can resolve its solution reference
	for _, c := range report.Counts {
		switch c.Kind {
		case model.KindWorkspace:
			assert.Equal(t, 0, c.Migrated)
			assert.Equal(t, 1, c.Skipped)
		case model.KindOrganization, model.KindConnector:
			assert.Equal(t, 1, c.Migrated)
		}
	}
	assert.Equal(t, usecase.StateComplete, report.State)
}

func TestOrchestrator_Parallel(t *testing.T) {
	source := memory.NewStore(repository.IDStrategyPreserve)
	for o := 1; o <= 5; o++ {
		orgID := fmt.Sprintf("o-%d", o)
		solID := fmt.Sprintf("sol-%d", o)
		seed(t, source, model.KindOrganization, model.Record{"id": orgID})
		seed(t, source, model.KindSolution, model.Record{"id": solID, "organizationId": orgID})
		for w := 1; w <= 3; w++ {
			wsID := fmt.Sprintf("w-%d-%d", o, w)
			seed(t, source, model.KindWorkspace, model.Record{
				"id": wsID, "organizationId": orgID, "solution": map[string]interface{}{"solutionId": solID},
			})
			seed(t, source, model.KindScenario, model.Record{
				"id": fmt.Sprintf("s-%d-%d", o, w), "organizationId": orgID, "workspaceId": wsID, "solutionId": solID,
			})
		}
	}

	config := usecase.DefaultOrchestratorConfig()
	config.Parallelism = 4
	dest := newDestination()
	report, err := newOrchestrator(source, dest, &recordingAudit{}, config).Run(context.Background(), "run-parallel")
	require.NoError(t, err)

	assert.Len(t, report.Mappings, 5+5+15+15)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, usecase.StateComplete, report.State)
	assertParentsWrittenFirst(t, dest)

	for o := 1; o <= 5; o++ {
		orgNew := mappingFor(t, report, model.KindOrganization, fmt.Sprintf("o-%d", o))
		for w := 1; w <= 3; w++ {
			ws, ok := dest.Get(model.KindWorkspace, mappingFor(t, report, model.KindWorkspace, fmt.Sprintf("w-%d-%d", o, w)))
			require.True(t, ok)
			assert.Equal(t, orgNew, ws.Fields.GetString("organizationId"))
		}
	}
}

func TestOrchestrator_CancelledRunStillCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dest := newDestination()
	mc := usecase.NewMigrationContext("run-cancel")

	report, err := newOrchestrator(fullTree(t), dest, &recordingAudit{}, usecase.DefaultOrchestratorConfig()).Execute(ctx, mc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dest.Writes())
	assert.Equal(t, usecase.StateComplete, report.State)
	assert.NotEmpty(t, report.Error)

	completes := 0
	for _, tr := range mc.Transitions() {
		if tr.State == usecase.StateComplete {
			completes++
		}
	}
	assert.Equal(t, 1, completes)
}

func TestOrchestrator_Filter(t *testing.T) {
	filter, err := service.NewEntityFilter(`kind != "ScenarioRun"`)
	require.NoError(t, err)
	audit := &recordingAudit{}
	dest := newDestination()

	report, err := usecase.NewOrchestrator(usecase.MigratorDeps{
		Source: fullTree(t),
		Dest:   dest,
		Filter: filter,
		Audit:  audit,
	}, nil, usecase.DefaultOrchestratorConfig()).Run(context.Background(), "run-filter")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Filtered)
	assert.Empty(t, dest.Entities(model.KindScenarioRun))
	filtered := audit.withStatus(model.AuditFiltered)
	require.Len(t, filtered, 1)
	assert.Equal(t, "sr-1", filtered[0].OldID)
}

func TestOrchestrator_PublishesStateChanges(t *testing.T) {
	bus := eventbus.NewEventBus(logger.NewNopLogger())
	var mu sync.Mutex
	var changes []usecase.StateChange
	var completed *usecase.Report
	bus.Subscribe(eventbus.EventTypeStateChanged, func(_ context.Context, e eventbus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, e.Data.(usecase.StateChange))
		return nil
	})
	bus.Subscribe(eventbus.EventTypeRunCompleted, func(_ context.Context, e eventbus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		completed = e.Data.(*usecase.Report)
		return nil
	})

	_, err := usecase.NewOrchestrator(usecase.MigratorDeps{
		Source: fullTree(t),
		Dest:   newDestination(),
	}, bus, usecase.DefaultOrchestratorConfig()).Run(context.Background(), "run-events")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, changes)
	assert.Equal(t, usecase.StateStart, changes[0].To)
	assert.Equal(t, usecase.StateComplete, changes[len(changes)-1].To)
	assert.Equal(t, usecase.StateScenarioRunsDone, changes[len(changes)-1].From)
	assert.Equal(t, "run-events", changes[0].RunID)
	require.NotNil(t, completed)
	assert.Equal(t, "run-events", completed.RunID)
}
