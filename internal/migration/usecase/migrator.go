package usecase

import (
	"context"
	"fmt"
	"time"

	"cosmo-migrator/internal/migration/domain/model"
	"cosmo-migrator/internal/migration/domain/repository"
	"cosmo-migrator/internal/migration/domain/service"
	apperrors "cosmo-migrator/internal/shared/errors"
	"cosmo-migrator/internal/shared/logger"
	"cosmo-migrator/internal/shared/metrics"
	"cosmo-migrator/internal/shared/utils"
)

// MigratorDeps are the collaborators shared by every entity migrator.
type MigratorDeps struct {
	Source     repository.SourceReader
	Dest       repository.DestinationWriter
	Normalizer *service.Normalizer
	Filter     *service.EntityFilter
	Audit      repository.AuditSink
	Metrics    *metrics.Metrics
	Logger     logger.Logger
}

// EntityMigrator moves every entity of one kind under a scope. The per-kind
// behavior is entirely described by its reference table.
type EntityMigrator struct {
	kind       model.Kind
	references []Reference
	source     repository.SourceReader
	dest       repository.DestinationWriter
	normalizer *service.Normalizer
	filter     *service.EntityFilter
	audit      repository.AuditSink
	metrics    *metrics.Metrics
	logger     logger.Logger
}

// NewEntityMigrator creates the migrator for kind.
func NewEntityMigrator(kind model.Kind, deps MigratorDeps) *EntityMigrator {
	if deps.Normalizer == nil {
		deps.Normalizer = service.NewNormalizer()
	}
	if deps.Audit == nil {
		deps.Audit = discardAudit{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	return &EntityMigrator{
		kind:       kind,
		references: ReferencesFor(kind),
		source:     deps.Source,
		dest:       deps.Dest,
		normalizer: deps.Normalizer,
		filter:     deps.Filter,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		logger:     deps.Logger.WithComponent("migrator").WithFields(map[string]interface{}{"kind": string(kind)}),
	}
}

// Kind returns the kind this migrator handles.
func (m *EntityMigrator) Kind() model.Kind { return m.kind }

// MigrateAll lists the children of scope and migrates them. A failed listing
// is logged and treated as empty. Only a fatal error is returned.
func (m *EntityMigrator) MigrateAll(ctx context.Context, mc *MigrationContext, scope model.Scope) ([]model.Mapping, error) {
	return m.MigrateEntities(ctx, mc, scope, m.List(ctx, scope))
}

// List fetches the entities of the migrator's kind under scope. A failed
// listing is logged as a FetchFailure and yields no entities.
func (m *EntityMigrator) List(ctx context.Context, scope model.Scope) []*model.Entity {
	ctx = scopedContext(ctx, m.kind, scope)
	entities, err := m.source.ListChildren(ctx, m.kind, scope)
	if err != nil {
		fetchErr := apperrors.NewFetchFailure(string(m.kind), scope.String(), err)
		m.logger.WithContext(ctx).Warnf("%v; continuing with no %s entities", fetchErr, m.kind)
		m.metrics.ObserveFetchFailure(string(m.kind))
		return nil
	}
	if m.kind == model.KindScenario {
		entities = parentsFirst(entities)
	}
	return entities
}

func scopedContext(ctx context.Context, kind model.Kind, scope model.Scope) context.Context {
	return utils.WithScope(utils.WithKind(ctx, string(kind)), scope.OrganizationID, scope.WorkspaceID, scope.ScenarioID)
}

// parentsFirst orders scenarios so that a scenario never precedes the parent
// it was branched from. Relative order is otherwise kept.
func parentsFirst(entities []*model.Entity) []*model.Entity {
	byID := make(map[string]*model.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}
	out := make([]*model.Entity, 0, len(entities))
	placed := make(map[string]bool, len(entities))
	var place func(e *model.Entity, depth int)
	place = func(e *model.Entity, depth int) {
		if placed[e.ID] {
			return
		}
		if parent, ok := byID[e.Fields.GetString("parentId")]; ok && parent != e && depth < len(entities) {
			place(parent, depth+1)
		}
		if !placed[e.ID] {
			placed[e.ID] = true
			out = append(out, e)
		}
	}
	for _, e := range entities {
		place(e, 0)
	}
	return out
}

// MigrateEntities migrates an already-fetched batch. scope is the source
// scope the batch was read under.
func (m *EntityMigrator) MigrateEntities(ctx context.Context, mc *MigrationContext, scope model.Scope, entities []*model.Entity) ([]model.Mapping, error) {
	ctx = scopedContext(ctx, m.kind, scope)
	mappings := make([]model.Mapping, 0, len(entities))
	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			return mappings, err
		}
		mapping, err := m.migrateOne(ctx, mc, scope, entity)
		if err != nil {
			return mappings, err
		}
		if mapping != nil {
			mappings = append(mappings, *mapping)
		}
	}
	return mappings, nil
}

// migrateOne returns a mapping on success, (nil, nil) when the entity was
// skipped, and an error only when the run must stop.
func (m *EntityMigrator) migrateOne(ctx context.Context, mc *MigrationContext, scope model.Scope, entity *model.Entity) (*model.Mapping, error) {
	if entity.Kind != m.kind {
		m.record(ctx, mc, entity, scope, model.AuditSkipped, "", fmt.Sprintf("kind %s does not match migrator %s", entity.Kind, m.kind))
		return nil, nil
	}
	if mc.Identities.Has(m.kind, entity.ID) {
		m.record(ctx, mc, entity, scope, model.AuditSkipped, "", "already migrated")
		return nil, nil
	}

	normalized, err := m.normalizer.Normalize(entity, scope)
	if err != nil {
		m.skip(ctx, mc, entity, scope, err)
		return nil, nil
	}

	allowed, err := m.filter.Allow(normalized)
	if err != nil {
		m.skip(ctx, mc, entity, scope, err)
		return nil, nil
	}
	if !allowed {
		m.record(ctx, mc, entity, scope, model.AuditFiltered, "", "excluded by filter "+m.filter.Expression())
		return nil, nil
	}

	if err := m.resolveReferences(mc, normalized); err != nil {
		m.skip(ctx, mc, entity, scope, err)
		return nil, nil
	}
	destScope := destinationScope(m.kind, normalized.Fields)

	started := time.Now()
	newID, err := m.dest.Create(ctx, m.kind, destScope, normalized)
	m.metrics.ObserveWrite(string(m.kind), time.Since(started))
	if err != nil {
		if errType, _ := apperrors.TypeOf(err); errType != apperrors.ErrorTypeWriteFailure {
			err = apperrors.NewWriteFailure(string(m.kind), entity.ID, err)
		}
		m.fail(ctx, mc, entity, scope, err)
		return nil, nil
	}

	if err := mc.Identities.Register(m.kind, entity.ID, newID); err != nil {
		m.fail(ctx, mc, entity, scope, err)
		return nil, err
	}
	m.metrics.SetMappings(mc.Identities.Len())
	m.record(ctx, mc, entity, scope, model.AuditMigrated, newID, "")
	m.logger.WithContext(ctx).Debugf("migrated %s %s -> %s", m.kind, entity.ID, newID)
	return &model.Mapping{Kind: m.kind, OldID: entity.ID, NewID: newID}, nil
}

// resolveReferences rewrites every foreign key of the normalized record from
// old to new identifiers.
func (m *EntityMigrator) resolveReferences(mc *MigrationContext, normalized *model.Entity) error {
	fields := normalized.Fields
	for _, ref := range m.references {
		if ref.List {
			resolveList(mc, fields, ref)
			continue
		}

		oldRef := fields.GetString(ref.Field)
		if oldRef == "" {
			if ref.Required {
				return apperrors.NewMissingReference(string(m.kind), normalized.ID, ref.Field, string(ref.Kind), "")
			}
			continue
		}
		newRef, err := mc.Identities.Resolve(ref.Kind, oldRef)
		if err != nil {
			if ref.Required {
				return apperrors.NewMissingReference(string(m.kind), normalized.ID, ref.Field, string(ref.Kind), oldRef)
			}
			continue
		}
		if !fields.Set(ref.Field, newRef) {
			return apperrors.NewMissingReference(string(m.kind), normalized.ID, ref.Field, string(ref.Kind), oldRef)
		}
	}
	return nil
}

// resolveList rewrites the mapped entries of an identifier list in place and
// keeps the unmapped ones.
func resolveList(mc *MigrationContext, fields model.Record, ref Reference) {
	raw, ok := fields.Get(ref.Field)
	if !ok {
		return
	}
	switch list := raw.(type) {
	case []interface{}:
		for i, item := range list {
			if oldRef, ok := item.(string); ok {
				if newRef, err := mc.Identities.Resolve(ref.Kind, oldRef); err == nil {
					list[i] = newRef
				}
			}
		}
	case []string:
		for i, oldRef := range list {
			if newRef, err := mc.Identities.Resolve(ref.Kind, oldRef); err == nil {
				list[i] = newRef
			}
		}
	}
}

// destinationScope extracts the already-resolved ancestor ids a writer needs
// to address an entity of kind.
func destinationScope(kind model.Kind, fields model.Record) model.Scope {
	var scope model.Scope
	if kind.IsGlobal() || kind == model.KindOrganization {
		return scope
	}
	scope.OrganizationID = fields.GetString("organizationId")
	switch kind {
	case model.KindScenario:
		scope.WorkspaceID = fields.GetString("workspaceId")
	case model.KindScenarioRun:
		scope.WorkspaceID = fields.GetString("workspaceId")
		scope.ScenarioID = fields.GetString("scenarioId")
	}
	return scope
}

func (m *EntityMigrator) skip(ctx context.Context, mc *MigrationContext, entity *model.Entity, scope model.Scope, err error) {
	m.logger.WithContext(ctx).WithFields(map[string]interface{}{"id": entity.ID}).Warnf("skipping %s %s: %v", m.kind, entity.ID, err)
	m.record(ctx, mc, entity, scope, model.AuditSkipped, "", err.Error())
}

func (m *EntityMigrator) fail(ctx context.Context, mc *MigrationContext, entity *model.Entity, scope model.Scope, err error) {
	m.logger.WithContext(ctx).WithFields(map[string]interface{}{"id": entity.ID}).Errorf("failed to migrate %s %s: %v", m.kind, entity.ID, err)
	m.record(ctx, mc, entity, scope, model.AuditFailed, "", err.Error())
}

func (m *EntityMigrator) record(ctx context.Context, mc *MigrationContext, entity *model.Entity, scope model.Scope, status model.AuditStatus, newID, detail string) {
	mc.Count(m.kind, status)
	m.metrics.ObserveEntity(string(m.kind), string(status))

	rec := model.AuditRecord{
		Kind:      m.kind,
		OldID:     entity.ID,
		NewID:     newID,
		Status:    status,
		Detail:    detail,
		Scope:     scope,
		Timestamp: time.Now().UTC(),
	}
	if err := m.audit.Record(ctx, rec); err != nil {
		m.logger.WithContext(ctx).Warnf("audit sink rejected %s %s: %v", m.kind, entity.ID, err)
	}
}

type discardAudit struct{}

func (discardAudit) Record(context.Context, model.AuditRecord) error { return nil }
func (discardAudit) Close() error                                    { return nil }
