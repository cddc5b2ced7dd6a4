package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cosmo-migrator/internal/migration/domain/model"
	"cosmo-migrator/internal/migration/domain/repository"
	apperrors "cosmo-migrator/internal/shared/errors"
)

// Write is one accepted Create call.
type Write struct {
	Kind  model.Kind
	OldID string
	NewID string
	Scope model.Scope
}

// Store is an in-process entity store. It serves as a source, as a dry-run
// destination and as a document scanner for export.
type Store struct {
	mu           sync.RWMutex
	strategy     repository.IDStrategy
	entities     map[model.Kind]map[string]*model.Entity
	order        map[model.Kind][]string
	writes       []Write
	writeErrors  map[model.Kind]map[string]error
	listErrors   map[model.Kind]error
	newIDFactory func(model.Kind) string
}

// NewStore creates an empty store that assigns ids according to strategy.
func NewStore(strategy repository.IDStrategy) *Store {
	if strategy == "" {
		strategy = repository.IDStrategyMint
	}
	return &Store{
		strategy:     strategy,
		entities:     make(map[model.Kind]map[string]*model.Entity),
		order:        make(map[model.Kind][]string),
		writeErrors:  make(map[model.Kind]map[string]error),
		listErrors:   make(map[model.Kind]error),
		newIDFactory: model.NewID,
	}
}

// WithIDFactory replaces the id generator used by the mint strategy.
func (s *Store) WithIDFactory(fn func(model.Kind) string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newIDFactory = fn
	return s
}

// Seed inserts raw documents of kind as-is.
func (s *Store) Seed(kind model.Kind, docs ...model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		entity, err := model.NewTypedEntity(kind, doc)
		if err != nil {
			return err
		}
		s.put(entity)
	}
	return nil
}

func (s *Store) put(entity *model.Entity) {
	byID, ok := s.entities[entity.Kind]
	if !ok {
		byID = make(map[string]*model.Entity)
		s.entities[entity.Kind] = byID
	}
	if _, exists := byID[entity.ID]; !exists {
		s.order[entity.Kind] = append(s.order[entity.Kind], entity.ID)
	}
	byID[entity.ID] = entity
}

// FailWrite makes Create fail with err for the entity of kind whose source id is id.
func (s *Store) FailWrite(kind model.Kind, id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.writeErrors[kind]
	if !ok {
		byID = make(map[string]error)
		s.writeErrors[kind] = byID
	}
	byID[id] = err
}

// FailList makes ListChildren fail with err for kind.
func (s *Store) FailList(kind model.Kind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErrors[kind] = err
}

// ListChildren returns the entities of kind whose foreign keys match scope, in
// insertion order.
func (s *Store) ListChildren(ctx context.Context, kind model.Kind, scope model.Scope) ([]*model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.listErrors[kind]; err != nil {
		return nil, err
	}
	out := make([]*model.Entity, 0)
	for _, id := range s.order[kind] {
		entity := s.entities[kind][id]
		if inScope(entity, scope) {
			out = append(out, entity.Clone())
		}
	}
	return out, nil
}

func inScope(entity *model.Entity, scope model.Scope) bool {
	if entity.Kind.IsGlobal() || entity.Kind == model.KindOrganization {
		return true
	}
	matches := func(field, want string) bool {
		return want == "" || entity.Fields.GetString(field) == want
	}
	if !matches("organizationId", scope.OrganizationID) {
		return false
	}
	switch entity.Kind {
	case model.KindScenario:
		return matches("workspaceId", scope.WorkspaceID)
	case model.KindScenarioRun:
		return matches("workspaceId", scope.WorkspaceID) && matches("scenarioId", scope.ScenarioID)
	}
	return true
}

// GetByID returns one entity or a NotFound error.
func (s *Store) GetByID(ctx context.Context, kind model.Kind, id string) (*model.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[kind][id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("%s %s", kind, id))
	}
	return entity.Clone(), nil
}

// Create stores entity under a new or preserved identifier.
func (s *Store) Create(ctx context.Context, kind model.Kind, scope model.Scope, entity *model.Entity) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeErrors[kind][entity.ID]; err != nil {
		return "", apperrors.NewWriteFailure(string(kind), entity.ID, err)
	}

	newID := entity.ID
	if s.strategy == repository.IDStrategyMint {
		newID = s.newIDFactory(kind)
	}
	if _, exists := s.entities[kind][newID]; exists {
		return "", apperrors.NewWriteFailure(string(kind), entity.ID, fmt.Errorf("%s %s already exists", kind, newID))
	}

	stored := entity.Clone()
	stored.Kind = kind
	stored.ID = newID
	if stored.Fields == nil {
		stored.Fields = make(model.Record)
	}
	stored.Fields[model.IDField] = newID
	s.put(stored)
	s.writes = append(s.writes, Write{Kind: kind, OldID: entity.ID, NewID: newID, Scope: scope})
	return newID, nil
}

// Writes returns the accepted writes in call order.
func (s *Store) Writes() []Write {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Write(nil), s.writes...)
}

// Entities returns every stored entity of kind in insertion order.
func (s *Store) Entities(kind model.Kind) []*model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Entity, 0, len(s.order[kind]))
	for _, id := range s.order[kind] {
		out = append(out, s.entities[kind][id].Clone())
	}
	return out
}

// Get returns the stored entity of kind with id.
func (s *Store) Get(kind model.Kind, id string) (*model.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.entities[kind][id]
	if !ok {
		return nil, false
	}
	return entity.Clone(), true
}

// Scan presents the stored entities as raw documents grouped into the
// containers the document database lays them out in: "organizations",
// "connectors", "users", and "<organizationId>_<kind>s" for the rest.
func (s *Store) Scan(ctx context.Context, fn func(container string, doc model.Record) error) error {
	s.mu.RLock()
	type item struct {
		container string
		doc       model.Record
	}
	items := make([]item, 0)
	kinds := make([]model.Kind, 0, len(s.order))
	for kind := range s.order {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, kind := range kinds {
		for _, id := range s.order[kind] {
			entity := s.entities[kind][id]
			doc := entity.Fields.Clone()
			if doc == nil {
				doc = make(model.Record)
			}
			doc[model.IDField] = entity.ID
			items = append(items, item{container: ContainerFor(entity), doc: doc})
		}
	}
	s.mu.RUnlock()

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(it.container, it.doc); err != nil {
			return err
		}
	}
	return nil
}

// ContainerFor names the document container that holds entity.
func ContainerFor(entity *model.Entity) string {
	return model.ContainerName(entity.Kind, entity.Fields.GetString("organizationId"))
}
