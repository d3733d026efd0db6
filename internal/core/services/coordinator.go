package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-labs/roster/internal/core/domain"
	"github.com/custodia-labs/roster/internal/core/ports/driven"
	"github.com/custodia-labs/roster/internal/core/schema"
)

type changeOp int

const (
	opInsert changeOp = iota
	opUpdate
	opDelete
)

// pendingChange is one object's unsaved state handed to the coordinator.
type pendingChange struct {
	key       domain.RecordKey
	op        changeOp
	values    map[string]any
	committed map[string]any
	changed   map[string]bool
	version   int64
	current   map[string][]uuid.UUID
	added     map[string][]uuid.UUID
	removed   map[string][]uuid.UUID
}

// saveOutcome is the stored state after a save, used to refresh contexts.
type saveOutcome struct {
	seq     int64
	records map[domain.RecordKey]domain.Record
	deleted []domain.RecordKey
}

func (o *saveOutcome) isEmpty() bool {
	return o == nil || (len(o.records) == 0 && len(o.deleted) == 0)
}

// StoreCoordinator serialises writes to one record store and propagates
// saved changes to observing contexts.
type StoreCoordinator struct {
	mu    sync.Mutex
	model *schema.Schema
	store driven.RecordStore
	log   *zap.SugaredLogger
	seq   atomic.Int64

	obsMu     sync.Mutex
	observers map[*ManagedContext]struct{}
}

// NewStoreCoordinator creates a coordinator for a store opened with model.
func NewStoreCoordinator(model *schema.Schema, store driven.RecordStore, log *zap.SugaredLogger) *StoreCoordinator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &StoreCoordinator{
		model:     model,
		store:     store,
		log:       log,
		observers: make(map[*ManagedContext]struct{}),
	}
}

// NewContext creates a top-level context that reads and saves through c.
func (c *StoreCoordinator) NewContext(name string, policy domain.MergePolicy) *ManagedContext {
	return newManagedContext(name, c, nil, policy)
}

// Model returns the schema of the coordinated store.
func (c *StoreCoordinator) Model() *schema.Schema {
	return c.model
}

// record reads one record from the store.
func (c *StoreCoordinator) record(ctx context.Context, key domain.RecordKey) (*domain.Record, int64, error) {
	seq := c.seq.Load()
	rec, err := c.store.Fetch(ctx, key.Entity, key.ID)
	return rec, seq, err
}

// records reads every record of an entity from the store.
func (c *StoreCoordinator) records(ctx context.Context, entity string) ([]domain.Record, int64, error) {
	seq := c.seq.Load()
	recs, err := c.store.FetchAll(ctx, entity)
	return recs, seq, err
}

func (c *StoreCoordinator) observe(mc *ManagedContext, enabled bool) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	if enabled {
		c.observers[mc] = struct{}{}
	} else {
		delete(c.observers, mc)
	}
}

// broadcast delivers a save outcome to every observer except the source.
// It must be called without holding any context lock.
func (c *StoreCoordinator) broadcast(source *ManagedContext, out *saveOutcome) {
	if out.isEmpty() {
		return
	}
	c.obsMu.Lock()
	targets := make([]*ManagedContext, 0, len(c.observers))
	for mc := range c.observers {
		if mc != source {
			targets = append(targets, mc)
		}
	}
	c.obsMu.Unlock()

	for _, mc := range targets {
		mc.mergeSaved(out)
	}
}

// save resolves pending changes against the store under the given policy and
// applies the result atomically.
func (c *StoreCoordinator) save(ctx context.Context, changes []pendingChange, policy domain.MergePolicy) (*saveOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plan := newSavePlan(c)
	for _, ch := range changes {
		if err := plan.add(ctx, ch, policy); err != nil {
			return nil, err
		}
	}
	cs, err := plan.changeSet(ctx)
	if err != nil {
		return nil, err
	}

	if !cs.IsEmpty() {
		if err := c.store.Apply(ctx, cs); err != nil {
			return nil, fmt.Errorf("applying changes: %w", err)
		}
	}

	out := &saveOutcome{
		seq:     c.seq.Add(1),
		records: make(map[domain.RecordKey]domain.Record, len(plan.touched)),
		deleted: plan.deleted,
	}
	for key := range plan.touched {
		if plan.deleting[key] {
			continue
		}
		rec, err := c.store.Fetch(ctx, key.Entity, key.ID)
		if errors.Is(err, domain.ErrNotFound) {
			out.deleted = append(out.deleted, key)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading saved %s %s: %w", key.Entity, key.ID, err)
		}
		out.records[key] = *rec
	}

	c.log.Debugw("saved changes",
		"policy", policy,
		"inserts", len(cs.Inserts),
		"updates", len(cs.Updates),
		"deletes", len(cs.Deletes),
		"link_adds", len(cs.LinkAdds),
		"link_removes", len(cs.LinkRemoves),
		"dropped", len(plan.dropped))
	return out, nil
}

// savePlan accumulates the change set for one save.
type savePlan struct {
	coord       *StoreCoordinator
	cs          domain.ChangeSet
	inserting   map[domain.RecordKey]bool
	deleting    map[domain.RecordKey]bool
	touched     map[domain.RecordKey]bool
	deleted     []domain.RecordKey
	dropped     []domain.RecordKey
	linkAdds    map[domain.Link]bool
	linkRemoves map[domain.Link]bool
}

func newSavePlan(c *StoreCoordinator) *savePlan {
	return &savePlan{
		coord:       c,
		inserting:   make(map[domain.RecordKey]bool),
		deleting:    make(map[domain.RecordKey]bool),
		touched:     make(map[domain.RecordKey]bool),
		linkAdds:    make(map[domain.Link]bool),
		linkRemoves: make(map[domain.Link]bool),
	}
}

func (p *savePlan) add(ctx context.Context, ch pendingChange, policy domain.MergePolicy) error {
	switch ch.op {
	case opInsert:
		p.insert(ch)
		return nil
	case opDelete:
		return p.delete(ctx, ch, policy)
	default:
		return p.update(ctx, ch, policy)
	}
}

func (p *savePlan) insert(ch pendingChange) {
	p.cs.Inserts = append(p.cs.Inserts, domain.Record{Entity: ch.key.Entity, ID: ch.key.ID, Values: ch.values})
	p.inserting[ch.key] = true
	p.touched[ch.key] = true
	p.links(ch.key, ch.current, nil)
}

func (p *savePlan) delete(ctx context.Context, ch pendingChange, policy domain.MergePolicy) error {
	stored, err := p.coord.store.Fetch(ctx, ch.key.Entity, ch.key.ID)
	if errors.Is(err, domain.ErrNotFound) {
		p.deleted = append(p.deleted, ch.key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s %s: %w", ch.key.Entity, ch.key.ID, err)
	}
	if policy == domain.MergePolicyError && stored.Version != ch.version {
		return conflictError(ch, stored.Version)
	}
	p.cs.Deletes = append(p.cs.Deletes, ch.key)
	p.deleting[ch.key] = true
	p.deleted = append(p.deleted, ch.key)
	return nil
}

func (p *savePlan) update(ctx context.Context, ch pendingChange, policy domain.MergePolicy) error {
	stored, err := p.coord.store.Fetch(ctx, ch.key.Entity, ch.key.ID)
	if errors.Is(err, domain.ErrNotFound) {
		switch policy {
		case domain.MergePolicyError:
			return fmt.Errorf("%s %s was deleted by another context: %w", ch.key.Entity, ch.key.ID, domain.ErrMergeConflict)
		case domain.MergePolicyPropertyObjectTrump, domain.MergePolicyOverwrite:
			p.insert(ch)
		default:
			p.dropped = append(p.dropped, ch.key)
			p.deleted = append(p.deleted, ch.key)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s %s: %w", ch.key.Entity, ch.key.ID, err)
	}
	if policy == domain.MergePolicyError && stored.Version != ch.version && len(ch.changed) > 0 {
		return conflictError(ch, stored.Version)
	}

	res := resolveUpdate(policy, ch, stored)
	if res.values != nil {
		p.cs.Updates = append(p.cs.Updates, domain.RecordUpdate{
			Record:          domain.Record{Entity: ch.key.Entity, ID: ch.key.ID, Values: res.values},
			ExpectedVersion: stored.Version,
		})
	}
	p.touched[ch.key] = true
	p.links(ch.key, res.added, res.removed)
	return nil
}

// links records relationship changes as owning-side links.
func (p *savePlan) links(key domain.RecordKey, added, removed map[string][]uuid.UUID) {
	for rel, ids := range added {
		for _, id := range ids {
			if l, ok := p.link(key, rel, id); ok {
				p.linkAdds[l] = true
				delete(p.linkRemoves, l)
			}
		}
	}
	for rel, ids := range removed {
		for _, id := range ids {
			if l, ok := p.link(key, rel, id); ok {
				p.linkRemoves[l] = true
				delete(p.linkAdds, l)
			}
		}
	}
}

func (p *savePlan) link(key domain.RecordKey, rel string, other uuid.UUID) (domain.Link, bool) {
	r, ok := p.coord.model.Relationship(key.Entity, rel)
	if !ok {
		return domain.Link{}, false
	}
	p.touched[domain.RecordKey{Entity: r.Destination().Name(), ID: other}] = true
	if r.IsOwner() {
		return domain.Link{Entity: key.Entity, Relationship: rel, SourceID: key.ID, TargetID: other}, true
	}
	inv := r.Inverse()
	return domain.Link{Entity: inv.Entity().Name(), Relationship: inv.Name(), SourceID: other, TargetID: key.ID}, true
}

// changeSet finalises the plan, dropping links to records that are being
// deleted or no longer exist.
func (p *savePlan) changeSet(ctx context.Context) (domain.ChangeSet, error) {
	exists := make(map[domain.RecordKey]bool)
	alive := func(key domain.RecordKey) (bool, error) {
		if p.deleting[key] {
			return false, nil
		}
		if p.inserting[key] {
			return true, nil
		}
		if ok, seen := exists[key]; seen {
			return ok, nil
		}
		_, err := p.coord.store.Fetch(ctx, key.Entity, key.ID)
		switch {
		case err == nil:
			exists[key] = true
		case errors.Is(err, domain.ErrNotFound):
			exists[key] = false
		default:
			return false, fmt.Errorf("reading %s %s: %w", key.Entity, key.ID, err)
		}
		return exists[key], nil
	}

	for l := range p.linkAdds {
		r, _ := p.coord.model.Relationship(l.Entity, l.Relationship)
		src, err := alive(domain.RecordKey{Entity: l.Entity, ID: l.SourceID})
		if err != nil {
			return domain.ChangeSet{}, err
		}
		dst, err := alive(domain.RecordKey{Entity: r.Destination().Name(), ID: l.TargetID})
		if err != nil {
			return domain.ChangeSet{}, err
		}
		if src && dst {
			p.cs.LinkAdds = append(p.cs.LinkAdds, l)
		}
	}
	for l := range p.linkRemoves {
		r, _ := p.coord.model.Relationship(l.Entity, l.Relationship)
		if p.deleting[domain.RecordKey{Entity: l.Entity, ID: l.SourceID}] ||
			p.deleting[domain.RecordKey{Entity: r.Destination().Name(), ID: l.TargetID}] {
			continue
		}
		p.cs.LinkRemoves = append(p.cs.LinkRemoves, l)
	}
	return p.cs, nil
}

func conflictError(ch pendingChange, stored int64) error {
	return fmt.Errorf("%s %s: read at version %d, stored version %d: %w",
		ch.key.Entity, ch.key.ID, ch.version, stored, domain.ErrMergeConflict)
}
