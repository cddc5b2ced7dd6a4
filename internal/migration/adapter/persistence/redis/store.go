package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cosmo-migrator/internal/migration/domain/model"
	"cosmo-migrator/internal/migration/domain/repository"
	apperrors "cosmo-migrator/internal/shared/errors"
	"cosmo-migrator/internal/shared/logger"

	goredis "github.com/redis/go-redis/v9"
)

const scanBatch = 200

// Store keeps entities as JSON strings in Redis. Each entity lives at
// "<prefix>:<Kind>:<id>" and its id is added to the index set of its scope,
// "<prefix>:idx:<Kind>[:<organizationId>[:<workspaceId>[:<scenarioId>]]]".
// It acts as a destination writer, a source reader and a document scanner.
type Store struct {
	client   *goredis.Client
	prefix   string
	strategy repository.IDStrategy
	newID    func(model.Kind) string
	logger   logger.Logger
}

// NewStore creates a store over client. An empty prefix defaults to "cosmo".
func NewStore(client *goredis.Client, prefix string, strategy repository.IDStrategy, log logger.Logger) *Store {
	if prefix == "" {
		prefix = "cosmo"
	}
	if strategy == "" {
		strategy = repository.IDStrategyMint
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{
		client:   client,
		prefix:   prefix,
		strategy: strategy,
		newID:    model.NewID,
		logger:   log.WithComponent("redis-store"),
	}
}

// EntityKey is the key holding one entity document.
func (s *Store) EntityKey(kind model.Kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, kind, id)
}

// IndexKey is the set listing the ids of kind under scope.
func (s *Store) IndexKey(kind model.Kind, scope model.Scope) (string, error) {
	parts := []string{s.prefix, "idx", string(kind)}
	need := func(name, value string) error {
		if value == "" {
			return apperrors.NewValidationError(fmt.Sprintf("%s index requires %s", kind, name))
		}
		parts = append(parts, value)
		return nil
	}

	switch kind {
	case model.KindUnknown:
		return "", apperrors.NewValidationError("no index for unknown kind")
	case model.KindSolution, model.KindDataset, model.KindWorkspace:
		if err := need("organizationId", scope.OrganizationID); err != nil {
			return "", err
		}
	case model.KindScenario:
		if err := need("organizationId", scope.OrganizationID); err != nil {
			return "", err
		}
		if err := need("workspaceId", scope.WorkspaceID); err != nil {
			return "", err
		}
	case model.KindScenarioRun:
		if err := need("organizationId", scope.OrganizationID); err != nil {
			return "", err
		}
		if err := need("workspaceId", scope.WorkspaceID); err != nil {
			return "", err
		}
		if err := need("scenarioId", scope.ScenarioID); err != nil {
			return "", err
		}
	}
	return strings.Join(parts, ":"), nil
}

// Create stores entity with SET NX so an existing document is never
// overwritten, then indexes it under scope.
func (s *Store) Create(ctx context.Context, kind model.Kind, scope model.Scope, entity *model.Entity) (string, error) {
	indexKey, err := s.IndexKey(kind, scope)
	if err != nil {
		return "", apperrors.NewWriteFailure(string(kind), entity.ID, err)
	}

	newID := entity.ID
	if s.strategy == repository.IDStrategyMint {
		newID = s.newID(kind)
	}
	doc := entity.Fields.Clone()
	if doc == nil {
		doc = make(model.Record)
	}
	doc[model.IDField] = newID

	data, err := json.Marshal(doc)
	if err != nil {
		return "", apperrors.NewWriteFailure(string(kind), entity.ID, err)
	}
	created, err := s.client.SetNX(ctx, s.EntityKey(kind, newID), data, 0).Result()
	if err != nil {
		return "", apperrors.NewWriteFailure(string(kind), entity.ID, err)
	}
	if !created {
		return "", apperrors.NewWriteFailure(string(kind), entity.ID, fmt.Errorf("%s %s already exists", kind, newID))
	}
	if err := s.client.SAdd(ctx, indexKey, newID).Err(); err != nil {
		return "", apperrors.NewWriteFailure(string(kind), entity.ID, err)
	}

	s.logger.WithContext(ctx).Debugf("stored %s %s as %s", kind, entity.ID, newID)
	return newID, nil
}

// ListChildren returns the indexed entities of kind under scope, ordered by id.
func (s *Store) ListChildren(ctx context.Context, kind model.Kind, scope model.Scope) ([]*model.Entity, error) {
	indexKey, err := s.IndexKey(kind, scope)
	if err != nil {
		return nil, err
	}
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", indexKey, err)
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.EntityKey(kind, id)
	}
	docs, err := s.load(ctx, keys)
	if err != nil {
		return nil, err
	}

	entities := make([]*model.Entity, 0, len(docs))
	for _, doc := range docs {
		entity, err := model.NewTypedEntity(kind, doc)
		if err != nil {
			s.logger.WithContext(ctx).Warnf("ignoring %s document: %v", kind, err)
			continue
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// GetByID returns one entity or a NotFound error.
func (s *Store) GetByID(ctx context.Context, kind model.Kind, id string) (*model.Entity, error) {
	data, err := s.client.Get(ctx, s.EntityKey(kind, id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("%s %s", kind, id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s %s: %w", kind, id, err)
	}
	doc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
	}
	return model.NewTypedEntity(kind, doc)
}

// Scan walks every stored entity, kind by kind, and reports it under the
// container name the document database would use.
func (s *Store) Scan(ctx context.Context, fn func(container string, doc model.Record) error) error {
	kinds := append(append([]model.Kind(nil), model.MigrationOrder...), model.KindUser)
	for _, kind := range kinds {
		keys, err := s.keysOf(ctx, kind)
		if err != nil {
			return err
		}
		for start := 0; start < len(keys); start += scanBatch {
			end := start + scanBatch
			if end > len(keys) {
				end = len(keys)
			}
			docs, err := s.load(ctx, keys[start:end])
			if err != nil {
				return err
			}
			for _, doc := range docs {
				if err := fn(model.ContainerName(kind, doc.GetString("organizationId")), doc); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Store) keysOf(ctx context.Context, kind model.Kind) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, fmt.Sprintf("%s:%s:*", s.prefix, kind), scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s keys: %w", kind, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// load fetches keys with MGET, skipping keys that vanished in between.
func (s *Store) load(ctx context.Context, keys []string) ([]model.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load %d documents: %w", len(keys), err)
	}
	docs := make([]model.Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		doc, err := decode([]byte(raw))
		if err != nil {
			s.logger.WithContext(ctx).Warnf("ignoring undecodable document %s: %v", keys[i], err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func decode(data []byte) (model.Record, error) {
	var doc model.Record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
