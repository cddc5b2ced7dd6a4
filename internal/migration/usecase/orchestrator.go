package usecase

import (
	"context"
	"time"

	"cosmo-migrator/internal/migration/domain/model"
	"cosmo-migrator/internal/migration/domain/repository"
	apperrors "cosmo-migrator/internal/shared/errors"
	"cosmo-migrator/internal/shared/eventbus"
	"cosmo-migrator/internal/shared/logger"
	"cosmo-migrator/internal/shared/metrics"
	"cosmo-migrator/internal/shared/utils"

	"golang.org/x/sync/errgroup"
)

// OrchestratorConfig selects what a traversal covers.
type OrchestratorConfig struct {
	// OrganizationID restricts the run to a single organization when set.
	OrganizationID      string
	MigrateDatasets     bool
	MigrateScenarioRuns bool
	// Parallelism above 1 migrates organizations, and workspaces within an
	// organization, concurrently.
	Parallelism int
}

// DefaultOrchestratorConfig migrates everything sequentially.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MigrateDatasets:     true,
		MigrateScenarioRuns: true,
		Parallelism:         1,
	}
}

// Orchestrator walks the source hierarchy parents first and drives one
// migrator per kind.
type Orchestrator struct {
	source    repository.SourceReader
	migrators map[model.Kind]*EntityMigrator
	bus       eventbus.EventBusInterface
	metrics   *metrics.Metrics
	logger    logger.Logger
	config    OrchestratorConfig
}

// NewOrchestrator builds the migrators for every kind from deps. bus may be nil.
func NewOrchestrator(deps MigratorDeps, bus eventbus.EventBusInterface, config OrchestratorConfig) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	migrators := make(map[model.Kind]*EntityMigrator, len(model.MigrationOrder))
	for _, kind := range model.MigrationOrder {
		migrators[kind] = NewEntityMigrator(kind, deps)
	}
	return &Orchestrator{
		source:    deps.Source,
		migrators: migrators,
		bus:       bus,
		metrics:   deps.Metrics,
		logger:    deps.Logger.WithComponent("orchestrator"),
		config:    config,
	}
}

// Migrator returns the migrator of kind.
func (o *Orchestrator) Migrator(kind model.Kind) *EntityMigrator {
	return o.migrators[kind]
}

// Run executes a whole traversal under a fresh migration context.
func (o *Orchestrator) Run(ctx context.Context, runID string) (*Report, error) {
	return o.Execute(ctx, NewMigrationContext(runID))
}

// Execute executes a whole traversal with mc. The run always ends in
// StateComplete; the returned error is a fatal migration error or the
// context's cancellation cause.
func (o *Orchestrator) Execute(ctx context.Context, mc *MigrationContext) (*Report, error) {
	ctx = utils.WithRunID(ctx, mc.RunID)
	started := time.Now().UTC()
	o.logger.WithContext(ctx).Infof("starting migration run %s", mc.RunID)
	o.publishState(ctx, mc, "", StateStart, model.Scope{})

	err := o.traverse(ctx, mc)
	if err == nil {
		err = ctx.Err()
	}
	o.advance(ctx, mc, StateComplete, model.Scope{})

	report := NewReport(mc, started, err)
	o.publish(ctx, eventbus.NewEvent(eventbus.EventTypeRunCompleted, report, "orchestrator"))
	if err != nil {
		o.logger.WithContext(ctx).Errorf("migration run %s stopped: %v", mc.RunID, err)
	} else {
		o.logger.WithContext(ctx).Infof("migration run %s complete: %d migrated, %d skipped, %d failed",
			mc.RunID, report.Migrated, report.Skipped, report.Failed)
	}
	return report, err
}

func (o *Orchestrator) traverse(ctx context.Context, mc *MigrationContext) error {
	if _, err := o.migrators[model.KindConnector].MigrateAll(ctx, mc, model.Scope{}); err != nil {
		return err
	}
	o.advance(ctx, mc, StateConnectorsDone, model.Scope{})

	return o.fanOut(ctx, o.organizations(ctx), func(ctx context.Context, org *model.Entity) error {
		return o.migrateOrganization(ctx, mc, org)
	})
}

// organizations returns either the configured organization or every one.
func (o *Orchestrator) organizations(ctx context.Context) []*model.Entity {
	if o.config.OrganizationID == "" {
		return o.migrators[model.KindOrganization].List(ctx, model.Scope{})
	}
	org, err := o.source.GetByID(ctx, model.KindOrganization, o.config.OrganizationID)
	if err != nil {
		fetchErr := apperrors.NewFetchFailure(string(model.KindOrganization), o.config.OrganizationID, err)
		o.logger.WithContext(ctx).Warnf("%v; nothing to migrate", fetchErr)
		o.metrics.ObserveFetchFailure(string(model.KindOrganization))
		return nil
	}
	return []*model.Entity{org}
}

func (o *Orchestrator) migrateOrganization(ctx context.Context, mc *MigrationContext, org *model.Entity) error {
	created, err := o.migrators[model.KindOrganization].MigrateEntities(ctx, mc, model.Scope{}, []*model.Entity{org})
	if err != nil || len(created) == 0 {
		return err
	}
	scope := model.Scope{OrganizationID: org.ID}
	ctx = utils.WithScope(ctx, scope.OrganizationID, "", "")
	o.advance(ctx, mc, StateOrgCreated, scope)

	if _, err := o.migrators[model.KindSolution].MigrateAll(ctx, mc, scope); err != nil {
		return err
	}
	o.advance(ctx, mc, StateSolutionsDone, scope)

	if o.config.MigrateDatasets {
		if _, err := o.migrators[model.KindDataset].MigrateAll(ctx, mc, scope); err != nil {
			return err
		}
		o.advance(ctx, mc, StateDatasetsDone, scope)
	}

	workspaces := o.migrators[model.KindWorkspace].List(ctx, scope)
	return o.fanOut(ctx, workspaces, func(ctx context.Context, ws *model.Entity) error {
		return o.migrateWorkspace(ctx, mc, scope, ws)
	})
}

func (o *Orchestrator) migrateWorkspace(ctx context.Context, mc *MigrationContext, orgScope model.Scope, ws *model.Entity) error {
	created, err := o.migrators[model.KindWorkspace].MigrateEntities(ctx, mc, orgScope, []*model.Entity{ws})
	if err != nil || len(created) == 0 {
		return err
	}
	scope := model.Scope{OrganizationID: orgScope.OrganizationID, WorkspaceID: ws.ID}
	o.advance(ctx, mc, StateWorkspaceCreated, scope)

	scenarios := o.migrators[model.KindScenario].List(ctx, scope)
	for _, scenario := range scenarios {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.migrateScenario(ctx, mc, scope, scenario); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) migrateScenario(ctx context.Context, mc *MigrationContext, wsScope model.Scope, scenario *model.Entity) error {
	created, err := o.migrators[model.KindScenario].MigrateEntities(ctx, mc, wsScope, []*model.Entity{scenario})
	if err != nil || len(created) == 0 {
		return err
	}
	scope := wsScope
	scope.ScenarioID = scenario.ID
	o.advance(ctx, mc, StateScenarioCreated, scope)

	if !o.config.MigrateScenarioRuns {
		return nil
	}
	if _, err := o.migrators[model.KindScenarioRun].MigrateAll(ctx, mc, scope); err != nil {
		return err
	}
	o.advance(ctx, mc, StateScenarioRunsDone, scope)
	return nil
}

// fanOut applies fn to every item, sequentially or through a bounded
// errgroup. The first error stops the remaining items.
func (o *Orchestrator) fanOut(ctx context.Context, items []*model.Entity, fn func(context.Context, *model.Entity) error) error {
	if o.config.Parallelism <= 1 {
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, item); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Parallelism)
	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, item)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) advance(ctx context.Context, mc *MigrationContext, state RunState, scope model.Scope) {
	previous := mc.Advance(state, scope)
	o.publishState(ctx, mc, previous, state, scope)
}

func (o *Orchestrator) publishState(ctx context.Context, mc *MigrationContext, previous, state RunState, scope model.Scope) {
	o.metrics.SetState(string(previous), string(state))
	o.logger.WithContext(ctx).Debugf("state %s at %s", state, scope)
	o.publish(ctx, eventbus.NewEvent(eventbus.EventTypeStateChanged, StateChange{
		RunID: mc.RunID,
		From:  previous,
		To:    state,
		Scope: scope,
	}, "orchestrator"))
}

func (o *Orchestrator) publish(ctx context.Context, event eventbus.Event) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, event); err != nil {
		o.logger.WithContext(ctx).Warnf("failed to publish %s: %v", event.Type, err)
	}
}

// StateChange is the payload of run.state_changed events.
type StateChange struct {
	RunID string      `json:"runId"`
	From  RunState    `json:"from,omitempty"`
	To    RunState    `json:"to"`
	Scope model.Scope `json:"scope"`
}
