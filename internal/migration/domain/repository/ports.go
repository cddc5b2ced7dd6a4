package repository

import (
	"context"

	"cosmo-migrator/internal/migration/domain/model"
)

// SourceReader reads raw entities from the store being migrated away from.
type SourceReader interface {
	// ListChildren returns every entity of kind under scope. Global kinds and
	// organizations ignore the scope.
	ListChildren(ctx context.Context, kind model.Kind, scope model.Scope) ([]*model.Entity, error)

	// GetByID returns one entity; errors.ErrNotFound when it does not exist.
	GetByID(ctx context.Context, kind model.Kind, id string) (*model.Entity, error)
}

// DestinationWriter creates normalized entities in the target store.
type DestinationWriter interface {
	// Create writes entity under the destination scope and returns the id the
	// destination assigned. Whether that id is freshly minted or the source id
	// is preserved is a property of the writer's configuration.
	Create(ctx context.Context, kind model.Kind, scope model.Scope, entity *model.Entity) (string, error)
}

// DocumentScanner enumerates every raw document of a source, grouped by the
// container it lives in. It backs the export mode.
type DocumentScanner interface {
	Scan(ctx context.Context, fn func(container string, doc model.Record) error) error
}

// DumpStore holds exported documents between the export and import phases.
type DumpStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
}

// AuditSink receives one row per migrated or skipped entity.
type AuditSink interface {
	Record(ctx context.Context, rec model.AuditRecord) error
	Close() error
}

// IDStrategy selects how a destination writer assigns identifiers.
type IDStrategy string

const (
	// IDStrategyMint lets the destination create fresh identifiers.
	IDStrategyMint IDStrategy = "mint"
	// IDStrategyPreserve reuses the source identifier verbatim.
	IDStrategyPreserve IDStrategy = "preserve"
)
