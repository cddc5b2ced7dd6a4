package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"cosmo-migrator/internal/migration/domain/model"
	"cosmo-migrator/internal/migration/domain/repository"
	"cosmo-migrator/internal/migration/domain/service"
	"cosmo-migrator/internal/shared/logger"
	"cosmo-migrator/internal/shared/utils"
)

// globalContainers hold documents that belong to no organization.
var globalContainers = map[string]bool{
	"connectors":    true,
	"users":         true,
	"organizations": true,
}

// ExportResult summarizes an export.
type ExportResult struct {
	Exported int                `json:"exported"`
	Skipped  int                `json:"skipped"`
	ByKind   map[model.Kind]int `json:"byKind"`
}

// TransferUsecase moves entities in two phases through a dump store: Export
// writes one normalized JSON document per entity, Import replays the dump
// into the destination in dependency order.
type TransferUsecase struct {
	scanner    repository.DocumentScanner
	dump       repository.DumpStore
	normalizer *service.Normalizer
	audit      repository.AuditSink
	migrators  map[model.Kind]*EntityMigrator
	logger     logger.Logger
}

// NewTransferUsecase wires the transfer phases. scanner is only needed for
// Export and deps.Dest only for Import.
func NewTransferUsecase(deps MigratorDeps, scanner repository.DocumentScanner, dump repository.DumpStore) *TransferUsecase {
	if deps.Normalizer == nil {
		deps.Normalizer = service.NewNormalizer()
	}
	if deps.Audit == nil {
		deps.Audit = discardAudit{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	migrators := make(map[model.Kind]*EntityMigrator, len(model.MigrationOrder))
	for _, kind := range model.MigrationOrder {
		migrators[kind] = NewEntityMigrator(kind, deps)
	}
	return &TransferUsecase{
		scanner:    scanner,
		dump:       dump,
		normalizer: deps.Normalizer,
		audit:      deps.Audit,
		migrators:  migrators,
		logger:     deps.Logger.WithComponent("transfer"),
	}
}

// DumpKey names the dump object of one entity.
func DumpKey(kind model.Kind, id string) string {
	return fmt.Sprintf("%s_%s.json", kind, id)
}

// ScopeFromContainer derives the organization a container belongs to from
// its "<organizationId>_<collection>" name.
func ScopeFromContainer(container string) model.Scope {
	if globalContainers[container] {
		return model.Scope{}
	}
	if i := strings.Index(container, "_"); i > 0 {
		return model.Scope{OrganizationID: container[:i]}
	}
	return model.Scope{}
}

// Export scans every source document and writes its normalized form to the
// dump store. Documents that cannot be classified or normalized are logged
// and left out.
func (u *TransferUsecase) Export(ctx context.Context) (*ExportResult, error) {
	result := &ExportResult{ByKind: make(map[model.Kind]int)}
	log := u.logger.WithContext(ctx)

	err := u.scanner.Scan(ctx, func(container string, doc model.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entity, err := model.NewEntity(doc)
		if err != nil {
			log.Warnf("skipping document in %s: %v", container, err)
			result.Skipped++
			return nil
		}
		if entity.Kind == model.KindUnknown {
			log.Warnf("skipping %s in %s: cannot classify identifier", entity.ID, container)
			result.Skipped++
			return nil
		}

		normalized, err := u.normalizer.Normalize(entity, ScopeFromContainer(container))
		if err != nil {
			log.Warnf("skipping %s %s: %v", entity.Kind, entity.ID, err)
			result.Skipped++
			return nil
		}

		out := normalized.Fields.Clone()
		out[model.TypeField] = string(normalized.Kind)
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", entity.Kind, entity.ID, err)
		}
		if err := u.dump.Put(ctx, DumpKey(normalized.Kind, normalized.ID), data); err != nil {
			return fmt.Errorf("failed to store %s %s: %w", entity.Kind, entity.ID, err)
		}
		result.Exported++
		result.ByKind[normalized.Kind]++
		return nil
	})
	if err != nil {
		return result, err
	}
	log.Infof("exported %d documents, skipped %d", result.Exported, result.Skipped)
	return result, nil
}

// Import loads the whole dump and migrates it parents first, whatever order
// the dump store lists its objects in. Each entity's source scope comes from
// the foreign keys its record carries.
func (u *TransferUsecase) Import(ctx context.Context, mc *MigrationContext) (*Report, error) {
	ctx = utils.WithRunID(ctx, mc.RunID)
	started := time.Now().UTC()

	byKind, err := u.load(ctx, mc)
	if err == nil {
		err = u.replay(ctx, mc, byKind)
	}
	mc.Advance(StateComplete, model.Scope{})

	report := NewReport(mc, started, err)
	if err != nil {
		u.logger.WithContext(ctx).Errorf("import %s stopped: %v", mc.RunID, err)
	} else {
		u.logger.WithContext(ctx).Infof("import %s complete: %d migrated, %d skipped, %d failed",
			mc.RunID, report.Migrated, report.Skipped, report.Failed)
	}
	return report, err
}

func (u *TransferUsecase) load(ctx context.Context, mc *MigrationContext) (map[model.Kind][]*model.Entity, error) {
	keys, err := u.dump.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list dump: %w", err)
	}
	sort.Strings(keys)

	byKind := make(map[model.Kind][]*model.Entity)
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		data, err := u.dump.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		var doc model.Record
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			u.logger.WithContext(ctx).Warnf("skipping %s: %v", key, err)
			continue
		}
		entity, err := model.NewEntity(doc)
		if err != nil {
			u.logger.WithContext(ctx).Warnf("skipping %s: %v", key, err)
			continue
		}
		if entity.Kind.Rank() < 0 {
			u.skipUnmigratable(ctx, mc, entity)
			continue
		}
		byKind[entity.Kind] = append(byKind[entity.Kind], entity)
	}
	return byKind, nil
}

func (u *TransferUsecase) replay(ctx context.Context, mc *MigrationContext, byKind map[model.Kind][]*model.Entity) error {
	for _, kind := range model.MigrationOrder {
		entities := byKind[kind]
		if kind == model.KindScenario {
			entities = parentsFirst(entities)
		}
		for _, entity := range entities {
			if err := ctx.Err(); err != nil {
				return err
			}
			scope := model.Scope{}
			if !kind.IsGlobal() && kind != model.KindOrganization {
				scope = model.ScopeFromRecord(entity.Fields)
			}
			if _, err := u.migrators[kind].MigrateEntities(ctx, mc, scope, []*model.Entity{entity}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (u *TransferUsecase) skipUnmigratable(ctx context.Context, mc *MigrationContext, entity *model.Entity) {
	mc.Count(entity.Kind, model.AuditFiltered)
	u.logger.WithContext(ctx).Infof("not importing %s %s", entity.Kind, entity.ID)
	rec := model.AuditRecord{
		Kind:      entity.Kind,
		OldID:     entity.ID,
		Status:    model.AuditFiltered,
		Detail:    fmt.Sprintf("%s entities are not migrated", entity.Kind),
		Timestamp: time.Now().UTC(),
	}
	if err := u.audit.Record(ctx, rec); err != nil {
		u.logger.WithContext(ctx).Warnf("audit sink rejected %s %s: %v", entity.Kind, entity.ID, err)
	}
}
