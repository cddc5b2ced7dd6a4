package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cosmo-migrator/internal/migration/config"
	"cosmo-migrator/internal/migration/domain/model"
	apperrors "cosmo-migrator/internal/shared/errors"
	"cosmo-migrator/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect opens a client for cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout).SetServerSelectionTimeout(cfg.ConnectTimeout)
	}
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{Username: cfg.Username, Password: cfg.Password})
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// SourceReader reads entities from a document database laid out as one
// container per organization and kind ("<organizationId>_workspaces") plus
// shared containers for organizations, connectors and users.
type SourceReader struct {
	db     DatabaseInterface
	logger logger.Logger
}

// NewSourceReader reads from db.
func NewSourceReader(db DatabaseInterface, log logger.Logger) *SourceReader {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &SourceReader{db: db, logger: log.WithComponent("mongodb-source")}
}

func scopeFilter(kind model.Kind, scope model.Scope) bson.M {
	filter := bson.M{}
	switch kind {
	case model.KindScenario:
		if scope.WorkspaceID != "" {
			filter["workspaceId"] = scope.WorkspaceID
		}
	case model.KindScenarioRun:
		if scope.WorkspaceID != "" {
			filter["workspaceId"] = scope.WorkspaceID
		}
		if scope.ScenarioID != "" {
			filter["scenarioId"] = scope.ScenarioID
		}
	}
	return filter
}

// ListChildren returns every document of kind under scope.
func (r *SourceReader) ListChildren(ctx context.Context, kind model.Kind, scope model.Scope) ([]*model.Entity, error) {
	if kind == model.KindUnknown {
		return nil, apperrors.NewValidationError("cannot list entities of unknown kind")
	}
	if !kind.IsGlobal() && kind != model.KindOrganization && scope.OrganizationID == "" {
		return nil, apperrors.NewValidationError(fmt.Sprintf("listing %s requires an organization", kind))
	}

	container := model.ContainerName(kind, scope.OrganizationID)
	cur, err := r.db.Collection(container).Find(ctx, scopeFilter(kind, scope))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", container, err)
	}
	defer cur.Close(ctx)

	entities := make([]*model.Entity, 0)
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document from %s: %w", container, err)
		}
		entity, err := model.NewTypedEntity(kind, ToRecord(doc))
		if err != nil {
			r.logger.WithContext(ctx).Warnf("ignoring document in %s: %v", container, err)
			continue
		}
		entities = append(entities, entity)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor error on %s: %w", container, err)
	}
	return entities, nil
}

// GetByID fetches one organization or global entity. Organization-scoped
// kinds cannot be located by id alone.
func (r *SourceReader) GetByID(ctx context.Context, kind model.Kind, id string) (*model.Entity, error) {
	if !kind.IsGlobal() && kind != model.KindOrganization {
		return nil, apperrors.NewValidationError(fmt.Sprintf("%s cannot be fetched without its organization", kind))
	}
	container := model.ContainerName(kind, "")
	var doc bson.M
	err := r.db.Collection(container).FindOne(ctx, bson.M{model.IDField: id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("%s %s", kind, id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s %s: %w", kind, id, err)
	}
	return model.NewTypedEntity(kind, ToRecord(doc))
}

// Scan walks every container in name order and hands each raw document to fn.
func (r *SourceReader) Scan(ctx context.Context, fn func(container string, doc model.Record) error) error {
	names, err := r.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		count, err := r.scanContainer(ctx, name, fn)
		if err != nil {
			return err
		}
		r.logger.WithContext(ctx).Debugf("scanned %d documents from %s", count, name)
	}
	return nil
}

func (r *SourceReader) scanContainer(ctx context.Context, name string, fn func(string, model.Record) error) (int, error) {
	cur, err := r.db.Collection(name).Find(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", name, err)
	}
	defer cur.Close(ctx)

	count := 0
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return count, fmt.Errorf("failed to decode document from %s: %w", name, err)
		}
		if err := fn(name, ToRecord(doc)); err != nil {
			return count, err
		}
		count++
	}
	return count, cur.Err()
}
