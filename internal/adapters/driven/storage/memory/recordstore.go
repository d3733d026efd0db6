package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-labs/roster/internal/core/domain"
	"github.com/custodia-labs/roster/internal/core/ports/driven"
	"github.com/custodia-labs/roster/internal/core/schema"
)

// Ensure RecordStore implements the interface.
var _ driven.RecordStore = (*RecordStore)(nil)

type pair struct {
	source uuid.UUID
	target uuid.UUID
}

// RecordStore is an in-memory implementation of driven.RecordStore.
// Nothing is persisted; each instance is an independent store.
type RecordStore struct {
	mu      sync.RWMutex
	model   *schema.Schema
	log     *zap.SugaredLogger
	records map[domain.RecordKey]domain.Record
	links   map[string]map[pair]struct{}
	closed  bool
}

// NewRecordStore creates an empty in-memory store for the model.
func NewRecordStore(model *schema.Schema, log *zap.SugaredLogger) *RecordStore {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &RecordStore{
		model:   model,
		log:     log,
		records: make(map[domain.RecordKey]domain.Record),
		links:   make(map[string]map[pair]struct{}),
	}
}

// Fetch retrieves one record with its relations.
func (s *RecordStore) Fetch(_ context.Context, entity string, id uuid.UUID) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, domain.ErrStoreClosed
	}
	e, ok := s.model.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, entity)
	}
	rec, ok := s.records[domain.RecordKey{Entity: entity, ID: id}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := s.withRelations(e, rec)
	return &out, nil
}

// FetchAll retrieves every record of an entity, ordered by identifier.
func (s *RecordStore) FetchAll(_ context.Context, entity string) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, domain.ErrStoreClosed
	}
	e, ok := s.model.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, entity)
	}

	var ids []uuid.UUID
	for key := range s.records {
		if key.Entity == entity {
			ids = append(ids, key.ID)
		}
	}
	domain.SortIDs(ids)

	result := make([]domain.Record, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.withRelations(e, s.records[domain.RecordKey{Entity: entity, ID: id}]))
	}
	return result, nil
}

// Apply writes a change set atomically.
// The change set is applied to a copy of the store state which replaces the
// current state only if every step succeeds.
func (s *RecordStore) Apply(_ context.Context, changes domain.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	if changes.IsEmpty() {
		return nil
	}

	records := maps.Clone(s.records)
	links := make(map[string]map[pair]struct{}, len(s.links))
	for table, set := range s.links {
		links[table] = maps.Clone(set)
	}

	for _, rec := range changes.Inserts {
		if _, ok := s.model.Entity(rec.Entity); !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownEntity, rec.Entity)
		}
		if _, exists := records[rec.Key()]; exists {
			return fmt.Errorf("inserting %s %s: %w", rec.Entity, rec.ID, domain.ErrAlreadyExists)
		}
		stored := attributesOnly(rec)
		stored.Version = 1
		records[rec.Key()] = stored
	}

	for _, u := range changes.Updates {
		current, ok := records[u.Record.Key()]
		if !ok {
			return fmt.Errorf("updating %s %s: %w", u.Record.Entity, u.Record.ID, domain.ErrNotFound)
		}
		if current.Version != u.ExpectedVersion {
			return fmt.Errorf("updating %s %s: expected version %d, stored %d: %w",
				u.Record.Entity, u.Record.ID, u.ExpectedVersion, current.Version, domain.ErrMergeConflict)
		}
		stored := attributesOnly(u.Record)
		stored.Version = current.Version + 1
		records[u.Record.Key()] = stored
	}

	for _, key := range changes.Deletes {
		e, ok := s.model.Entity(key.Entity)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownEntity, key.Entity)
		}
		delete(records, key)
		for _, rel := range e.Relationships() {
			set := links[rel.JoinTable()]
			for p := range set {
				if (rel.IsOwner() && p.source == key.ID) || (!rel.IsOwner() && p.target == key.ID) {
					delete(set, p)
				}
			}
		}
	}

	for _, l := range changes.LinkRemoves {
		rel, err := s.owningRelationship(l)
		if err != nil {
			return err
		}
		delete(links[rel.JoinTable()], pair{source: l.SourceID, target: l.TargetID})
	}

	for _, l := range changes.LinkAdds {
		rel, err := s.owningRelationship(l)
		if err != nil {
			return err
		}
		if _, ok := records[domain.RecordKey{Entity: rel.Entity().Name(), ID: l.SourceID}]; !ok {
			return fmt.Errorf("linking %s from %s: %w", rel.Qualified(), l.SourceID, domain.ErrNotFound)
		}
		if _, ok := records[domain.RecordKey{Entity: rel.Destination().Name(), ID: l.TargetID}]; !ok {
			return fmt.Errorf("linking %s to %s: %w", rel.Qualified(), l.TargetID, domain.ErrNotFound)
		}
		table := rel.JoinTable()
		if links[table] == nil {
			links[table] = make(map[pair]struct{})
		}
		links[table][pair{source: l.SourceID, target: l.TargetID}] = struct{}{}
	}

	s.records = records
	s.links = links
	s.log.Debugw("applied change set",
		"inserts", len(changes.Inserts),
		"updates", len(changes.Updates),
		"deletes", len(changes.Deletes),
		"link_adds", len(changes.LinkAdds),
		"link_removes", len(changes.LinkRemoves))
	return nil
}

// Path returns ":memory:".
func (s *RecordStore) Path() string {
	return ":memory:"
}

// Close marks the store closed. Subsequent calls return domain.ErrStoreClosed.
func (s *RecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *RecordStore) owningRelationship(l domain.Link) (*schema.Relationship, error) {
	rel, ok := s.model.Relationship(l.Entity, l.Relationship)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", domain.ErrUnknownProperty, l.Entity, l.Relationship)
	}
	if !rel.IsOwner() {
		return nil, fmt.Errorf("%w: link must use owning side %s", domain.ErrInvalidInput, rel.Owner().Qualified())
	}
	return rel, nil
}

// withRelations returns a copy of rec with relations read from the join tables.
// Callers must hold s.mu.
func (s *RecordStore) withRelations(e *schema.Entity, rec domain.Record) domain.Record {
	out := rec.Clone()
	for _, rel := range e.Relationships() {
		var ids []uuid.UUID
		for p := range s.links[rel.JoinTable()] {
			switch {
			case rel.IsOwner() && p.source == rec.ID:
				ids = append(ids, p.target)
			case !rel.IsOwner() && p.target == rec.ID:
				ids = append(ids, p.source)
			}
		}
		domain.SortIDs(ids)
		out.Relations[rel.Name()] = ids
	}
	return out
}

func attributesOnly(rec domain.Record) domain.Record {
	c := rec.Clone()
	c.Relations = nil
	return c
}
