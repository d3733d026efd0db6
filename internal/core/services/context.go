package services

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-labs/roster/internal/core/domain"
	"github.com/custodia-labs/roster/internal/core/schema"
)

// recordSource supplies committed records to a context.
// Top-level contexts read from the store coordinator; child contexts read
// their parent's current state.
type recordSource interface {
	record(ctx context.Context, key domain.RecordKey) (*domain.Record, int64, error)
	records(ctx context.Context, entity string) ([]domain.Record, int64, error)
}

// FetchRequest selects objects of one entity.
type FetchRequest struct {
	Entity string

	// Predicate filters objects; nil matches everything.
	Predicate func(*ManagedObject) bool

	// SortBy orders results by attribute; identifier order when empty.
	SortBy []SortDescriptor

	// Limit caps the number of results; 0 means no limit.
	Limit int
}

// SortDescriptor orders fetch results by one attribute.
type SortDescriptor struct {
	Key       string
	Ascending bool
}

// ManagedContext is a working set of managed objects with change tracking.
//
// Lock order is child context, then parent context, then store coordinator.
// Change notifications are delivered only after all locks are released.
type ManagedContext struct {
	mu        sync.Mutex
	name      string
	model     *schema.Schema
	coord     *StoreCoordinator
	parent    *ManagedContext
	policy    domain.MergePolicy
	autoMerge bool
	objects   map[domain.RecordKey]*ManagedObject
	log       *zap.SugaredLogger
}

func newManagedContext(name string, coord *StoreCoordinator, parent *ManagedContext, policy domain.MergePolicy) *ManagedContext {
	return &ManagedContext{
		name:    name,
		model:   coord.model,
		coord:   coord,
		parent:  parent,
		policy:  policy,
		objects: make(map[domain.RecordKey]*ManagedObject),
		log:     coord.log.Named(name),
	}
}

// Name returns the context name used in logs.
func (c *ManagedContext) Name() string {
	return c.name
}

// Model returns the schema the context operates on.
func (c *ManagedContext) Model() *schema.Schema {
	return c.model
}

// MergePolicy returns the policy used to resolve save conflicts.
func (c *ManagedContext) MergePolicy() domain.MergePolicy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// SetMergePolicy sets the policy used to resolve save conflicts.
func (c *ManagedContext) SetMergePolicy(p domain.MergePolicy) error {
	if !p.IsValid() {
		return fmt.Errorf("%w: merge policy %q", domain.ErrInvalidInput, p)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
	return nil
}

// AutomaticallyMergesChanges reports whether saves from sibling contexts are merged in.
func (c *ManagedContext) AutomaticallyMergesChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoMerge
}

// SetAutomaticallyMergesChanges enables merging of sibling saves. Only
// top-level contexts observe the store; child contexts see their parent directly.
func (c *ManagedContext) SetAutomaticallyMergesChanges(enabled bool) {
	c.mu.Lock()
	c.autoMerge = enabled
	c.mu.Unlock()
	if c.parent == nil {
		c.coord.observe(c, enabled)
	}
}

// NewChildContext returns a context whose saves are written into c.
func (c *ManagedContext) NewChildContext() *ManagedContext {
	return newManagedContext(c.name+".child", c.coord, c, c.MergePolicy())
}

func (c *ManagedContext) source() recordSource {
	if c.parent != nil {
		return c.parent
	}
	return c.coord
}

// Insert creates a new object of the entity with a random identifier.
func (c *ManagedContext) Insert(entity string) (*ManagedObject, error) {
	return c.InsertWithID(entity, uuid.New())
}

// InsertWithID creates a new object of the entity with the given identifier.
func (c *ManagedContext) InsertWithID(entity string, id uuid.UUID) (*ManagedObject, error) {
	e, ok := c.model.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, entity)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := domain.RecordKey{Entity: entity, ID: id}
	if _, exists := c.objects[key]; exists {
		return nil, fmt.Errorf("inserting %s %s: %w", entity, id, domain.ErrAlreadyExists)
	}
	o := insertedObject(c, e, id)
	c.objects[key] = o
	return o, nil
}

// Object returns the object with the given identifier, loading it if needed.
func (c *ManagedContext) Object(ctx context.Context, entity string, id uuid.UUID) (*ManagedObject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.objectLocked(ctx, entity, id)
}

func (c *ManagedContext) objectLocked(ctx context.Context, entity string, id uuid.UUID) (*ManagedObject, error) {
	key := domain.RecordKey{Entity: entity, ID: id}
	if o, ok := c.objects[key]; ok {
		if o.deleted {
			return nil, fmt.Errorf("%s %s: %w", entity, id, domain.ErrObjectDeleted)
		}
		return o, nil
	}
	e, ok := c.model.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, entity)
	}
	rec, seq, err := c.source().record(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading %s %s: %w", entity, id, err)
	}
	o := newObject(c, e, *rec, seq)
	c.objects[key] = o
	return o, nil
}

// Fetch returns the objects of an entity that match the request.
// Objects already registered in the context are returned as they are,
// including unsaved inserts; deleted objects are excluded.
func (c *ManagedContext) Fetch(ctx context.Context, req FetchRequest) ([]*ManagedObject, error) {
	e, ok := c.model.Entity(req.Entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, req.Entity)
	}

	c.mu.Lock()
	recs, seq, err := c.source().records(ctx, req.Entity)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("fetching %s: %w", req.Entity, err)
	}
	seen := make(map[uuid.UUID]bool, len(recs))
	objs := make([]*ManagedObject, 0, len(recs))
	for _, rec := range recs {
		seen[rec.ID] = true
		o, ok := c.objects[rec.Key()]
		if !ok {
			o = newObject(c, e, rec, seq)
			c.objects[rec.Key()] = o
		}
		if !o.deleted {
			objs = append(objs, o)
		}
	}
	for key, o := range c.objects {
		if key.Entity == req.Entity && !seen[key.ID] && o.inserted && !o.deleted {
			objs = append(objs, o)
		}
	}
	c.mu.Unlock()

	if req.Predicate != nil {
		objs = slices.DeleteFunc(objs, func(o *ManagedObject) bool { return !req.Predicate(o) })
	}
	sortObjects(objs, req.SortBy)
	if req.Limit > 0 && len(objs) > req.Limit {
		objs = objs[:req.Limit]
	}
	return objs, nil
}

// Delete marks the object deleted and applies the delete rules of its relationships.
func (c *ManagedContext) Delete(ctx context.Context, obj *ManagedObject) error {
	if obj == nil {
		return fmt.Errorf("%w: nil object", domain.ErrInvalidInput)
	}
	if obj.ctx != c {
		return domain.ErrForeignContext
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteLocked(ctx, obj)
}

func (c *ManagedContext) deleteLocked(ctx context.Context, obj *ManagedObject) error {
	if obj.deleted {
		return nil
	}
	if obj.detached {
		return domain.ErrForeignContext
	}

	closure, err := c.cascadeLocked(ctx, obj)
	if err != nil {
		return err
	}
	doomed := make(map[domain.RecordKey]bool, len(closure))
	for _, o := range closure {
		doomed[o.Key()] = true
	}

	for _, o := range closure {
		for _, r := range o.entity.Relationships() {
			if r.DeleteRule() != schema.DeleteRuleDeny {
				continue
			}
			for id := range o.relations[r.Name()] {
				if !doomed[domain.RecordKey{Entity: r.Destination().Name(), ID: id}] {
					return fmt.Errorf("deleting %s %s: %s is not empty: %w", o.entity.Name(), o.id, r.Qualified(), domain.ErrDeleteDenied)
				}
			}
		}
	}

	for _, o := range closure {
		for _, r := range o.entity.Relationships() {
			if r.DeleteRule() == schema.DeleteRuleNoAction {
				continue
			}
			for id := range o.relations[r.Name()] {
				related, err := c.objectLocked(ctx, r.Destination().Name(), id)
				if err != nil {
					if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrObjectDeleted) {
						continue
					}
					return err
				}
				delete(related.relations[r.Inverse().Name()], o.id)
			}
		}
	}

	for _, o := range closure {
		o.deleted = true
		if o.inserted {
			delete(c.objects, o.Key())
			o.detached = true
		}
	}
	return nil
}

// cascadeLocked returns obj and every object reachable through cascade relationships.
func (c *ManagedContext) cascadeLocked(ctx context.Context, obj *ManagedObject) ([]*ManagedObject, error) {
	visited := map[domain.RecordKey]bool{obj.Key(): true}
	closure := []*ManagedObject{obj}
	for i := 0; i < len(closure); i++ {
		o := closure[i]
		for _, r := range o.entity.Relationships() {
			if r.DeleteRule() != schema.DeleteRuleCascade {
				continue
			}
			for _, id := range o.relations[r.Name()].sorted() {
				key := domain.RecordKey{Entity: r.Destination().Name(), ID: id}
				if visited[key] {
					continue
				}
				related, err := c.objectLocked(ctx, key.Entity, id)
				if err != nil {
					if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrObjectDeleted) {
						continue
					}
					return nil, err
				}
				visited[key] = true
				closure = append(closure, related)
			}
		}
	}
	return closure, nil
}

// HasChanges reports whether the context has unsaved inserts, updates or deletes.
func (c *ManagedContext) HasChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range c.objects {
		if o.hasChangesLocked() {
			return true
		}
	}
	return false
}

// Rollback discards every unsaved change.
func (c *ManagedContext) Rollback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, o := range c.objects {
		if o.inserted {
			o.detached = true
			delete(c.objects, key)
			continue
		}
		o.revertLocked()
	}
}

// Reset unregisters every object. Objects obtained earlier must not be reused.
func (c *ManagedContext) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range c.objects {
		o.detached = true
	}
	c.objects = make(map[domain.RecordKey]*ManagedObject)
}

// Save writes pending changes. Top-level contexts save through the store
// coordinator and resolve conflicts with their merge policy; child contexts
// save into their parent, where the child's changes win.
func (c *ManagedContext) Save(ctx context.Context) error {
	if c.parent != nil {
		return c.saveToParent(ctx)
	}

	c.mu.Lock()
	changes, err := c.pendingLocked()
	if err != nil || len(changes) == 0 {
		c.mu.Unlock()
		return err
	}
	out, err := c.coord.save(ctx, changes, c.policy)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("saving %s context: %w", c.name, err)
	}
	saved := make(map[domain.RecordKey]bool, len(changes))
	for _, ch := range changes {
		saved[ch.key] = true
	}
	c.applyOutcomeLocked(out, saved)
	c.mu.Unlock()

	c.log.Debugw("context saved", "objects", len(changes), "seq", out.seq)
	c.coord.broadcast(c, out)
	return nil
}

// pendingLocked collects and validates the context's unsaved changes.
func (c *ManagedContext) pendingLocked() ([]pendingChange, error) {
	var changes []pendingChange
	for _, o := range c.sortedObjectsLocked() {
		if !o.hasChangesLocked() {
			continue
		}
		if !o.deleted {
			if err := validateLocked(o); err != nil {
				return nil, err
			}
		}
		ch := pendingChange{key: o.Key(), version: o.version}
		snap := o.snapshotLocked()
		switch {
		case o.inserted:
			ch.op = opInsert
			ch.values = snap.Values
			ch.current = snap.Relations
		case o.deleted:
			ch.op = opDelete
		default:
			ch.op = opUpdate
			ch.values = snap.Values
			ch.current = snap.Relations
			ch.committed = cloneValues(o.committedValues)
			ch.changed = o.changedAttrsLocked()
			ch.added, ch.removed = o.relationDeltaLocked()
		}
		changes = append(changes, ch)
	}
	return changes, nil
}

func (c *ManagedContext) applyOutcomeLocked(out *saveOutcome, saved map[domain.RecordKey]bool) {
	for key, rec := range out.records {
		o, ok := c.objects[key]
		if !ok {
			continue
		}
		if saved[key] {
			o.commitLocked(rec, out.seq)
		} else if !o.inserted {
			o.refreshLocked(rec, out.seq)
		}
	}
	for _, key := range out.deleted {
		c.removeLocked(key)
	}
}

// mergeSaved folds a sibling context's save into c, keeping local pending changes.
func (c *ManagedContext) mergeSaved(out *saveOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.autoMerge {
		return
	}
	refreshed := 0
	for key, rec := range out.records {
		if o, ok := c.objects[key]; ok && !o.inserted {
			o.refreshLocked(rec, out.seq)
			refreshed++
		}
	}
	for _, key := range out.deleted {
		c.removeLocked(key)
	}
	c.log.Debugw("merged changes", "refreshed", refreshed, "deleted", len(out.deleted), "seq", out.seq)
}

// removeLocked unregisters a record deleted from the store and nullifies
// references to it held by registered objects.
func (c *ManagedContext) removeLocked(key domain.RecordKey) {
	if o, ok := c.objects[key]; ok {
		o.deleted = true
		delete(c.objects, key)
	}
	for _, o := range c.objects {
		o.forgetLocked(key)
	}
}

func (c *ManagedContext) saveToParent(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.parent
	p.mu.Lock()
	defer p.mu.Unlock()

	objs := c.sortedObjectsLocked()
	for _, o := range objs {
		if o.hasChangesLocked() && !o.deleted {
			if err := validateLocked(o); err != nil {
				return err
			}
		}
	}

	restore := p.checkpointLocked()
	written, err := c.writeToParentLocked(ctx, objs)
	if err != nil {
		restore()
		return err
	}

	for key, o := range c.objects {
		if o.deleted {
			delete(c.objects, key)
			continue
		}
		if po, ok := written[key]; ok {
			o.commitLocked(po.snapshotLocked(), po.seq)
		}
	}
	c.log.Debugw("saved into parent", "parent", p.name, "objects", len(written))
	return nil
}

// writeToParentLocked applies the child's changed objects to the parent.
// Callers must hold both locks and restore the parent on error.
func (c *ManagedContext) writeToParentLocked(ctx context.Context, objs []*ManagedObject) (map[domain.RecordKey]*ManagedObject, error) {
	p := c.parent
	written := make(map[domain.RecordKey]*ManagedObject)
	for _, o := range objs {
		if !o.hasChangesLocked() {
			continue
		}
		key := o.Key()
		switch {
		case o.inserted:
			if _, exists := p.objects[key]; exists {
				return nil, fmt.Errorf("saving %s into %s: %w", key.ID, p.name, domain.ErrAlreadyExists)
			}
			po := insertedObject(p, o.entity, o.id)
			po.values = cloneValues(o.values)
			for name, set := range o.relations {
				po.relations[name] = set.clone()
			}
			p.objects[key] = po
			written[key] = po

		case o.deleted:
			po, err := p.objectLocked(ctx, key.Entity, key.ID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrObjectDeleted) {
					continue
				}
				return nil, err
			}
			if err := p.deleteLocked(ctx, po); err != nil {
				return nil, fmt.Errorf("saving into %s: %w", p.name, err)
			}

		default:
			po, err := p.objectLocked(ctx, key.Entity, key.ID)
			if err != nil {
				return nil, fmt.Errorf("saving into %s: %w", p.name, err)
			}
			for name := range o.changedAttrsLocked() {
				po.values[name] = o.values[name]
			}
			added, removed := o.relationDeltaLocked()
			for rel, ids := range added {
				for _, id := range ids {
					po.relations[rel][id] = struct{}{}
				}
			}
			for rel, ids := range removed {
				for _, id := range ids {
					delete(po.relations[rel], id)
				}
			}
			written[key] = po
		}
	}
	return written, nil
}

// checkpointLocked captures the registered objects and their state. The
// returned func puts them back.
func (c *ManagedContext) checkpointLocked() func() {
	objects := make(map[domain.RecordKey]*ManagedObject, len(c.objects))
	states := make(map[*ManagedObject]objectState, len(c.objects))
	for key, o := range c.objects {
		objects[key] = o
		states[o] = o.stateLocked()
	}
	return func() {
		for key, o := range c.objects {
			if _, ok := objects[key]; !ok {
				o.detached = true
			}
		}
		c.objects = objects
		for o, st := range states {
			o.restoreLocked(st)
		}
	}
}

// record implements recordSource for child contexts.
func (c *ManagedContext) record(ctx context.Context, key domain.RecordKey) (*domain.Record, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, err := c.objectLocked(ctx, key.Entity, key.ID)
	if err != nil {
		if errors.Is(err, domain.ErrObjectDeleted) {
			return nil, 0, domain.ErrNotFound
		}
		return nil, 0, err
	}
	rec := o.snapshotLocked()
	return &rec, o.seq, nil
}

// records implements recordSource for child contexts.
func (c *ManagedContext) records(ctx context.Context, entity string) ([]domain.Record, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	recs, seq, err := c.source().records(ctx, entity)
	if err != nil {
		return nil, 0, err
	}
	out := make([]domain.Record, 0, len(recs))
	seen := make(map[uuid.UUID]bool, len(recs))
	for _, rec := range recs {
		seen[rec.ID] = true
		if o, ok := c.objects[rec.Key()]; ok {
			if o.deleted {
				continue
			}
			rec = o.snapshotLocked()
		}
		out = append(out, rec)
	}
	for key, o := range c.objects {
		if key.Entity == entity && !seen[key.ID] && o.inserted && !o.deleted {
			out = append(out, o.snapshotLocked())
		}
	}
	slices.SortFunc(out, func(a, b domain.Record) int { return bytes.Compare(a.ID[:], b.ID[:]) })
	return out, seq, nil
}

func (c *ManagedContext) sortedObjectsLocked() []*ManagedObject {
	objs := make([]*ManagedObject, 0, len(c.objects))
	for _, o := range c.objects {
		objs = append(objs, o)
	}
	slices.SortFunc(objs, func(a, b *ManagedObject) int {
		if a.entity != b.entity {
			return strings.Compare(a.entity.Name(), b.entity.Name())
		}
		return bytes.Compare(a.id[:], b.id[:])
	})
	return objs
}

// validateLocked checks attribute presence and relationship cardinality.
func validateLocked(o *ManagedObject) error {
	for _, a := range o.entity.Attributes() {
		if !a.IsOptional() && o.values[a.Name()] == nil {
			return fmt.Errorf("%w: %s.%s is required", domain.ErrValidation, o.entity.Name(), a.Name())
		}
	}
	for _, r := range o.entity.Relationships() {
		n := len(o.relations[r.Name()])
		if !r.AllowsCount(n) {
			return fmt.Errorf("%w: %s has %d objects, allowed %d..%s", domain.ErrValidation, r.Qualified(), n, r.MinCount(), maxLabel(r))
		}
	}
	return nil
}

func maxLabel(r *schema.Relationship) string {
	if r.MaxCount() == schema.Unbounded {
		return "*"
	}
	return fmt.Sprint(r.MaxCount())
}

func sortObjects(objs []*ManagedObject, by []SortDescriptor) {
	if len(by) == 0 {
		slices.SortFunc(objs, func(a, b *ManagedObject) int { return bytes.Compare(a.id[:], b.id[:]) })
		return
	}
	keys := make(map[*ManagedObject][]any, len(objs))
	for _, o := range objs {
		vals := make([]any, len(by))
		for i, d := range by {
			vals[i] = o.Value(d.Key)
		}
		keys[o] = vals
	}
	slices.SortStableFunc(objs, func(a, b *ManagedObject) int {
		for i, d := range by {
			n := compareValues(keys[a][i], keys[b][i])
			if !d.Ascending {
				n = -n
			}
			if n != 0 {
				return n
			}
		}
		return bytes.Compare(a.id[:], b.id[:])
	})
}

// compareValues orders attribute values; nil sorts first.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		return strings.Compare(strings.ToLower(x), strings.ToLower(y))
	case int64:
		y, _ := b.(int64)
		return cmp.Compare(x, y)
	case bool:
		y, _ := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	case uuid.UUID:
		y, _ := b.(uuid.UUID)
		return bytes.Compare(x[:], y[:])
	default:
		return 0
	}
}
