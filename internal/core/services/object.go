package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-labs/roster/internal/core/domain"
	"github.com/custodia-labs/roster/internal/core/schema"
)

// Ensure ManagedObject exposes a stable identity.
var _ domain.Identifiable = (*ManagedObject)(nil)

type idSet map[uuid.UUID]struct{}

func newIDSet(ids []uuid.UUID) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s idSet) sorted() []uuid.UUID {
	if len(s) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	domain.SortIDs(ids)
	return ids
}

func (s idSet) clone() idSet {
	c := make(idSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// minus returns the sorted identifiers in s that are not in other.
func (s idSet) minus(other idSet) []uuid.UUID {
	var out []uuid.UUID
	for id := range s {
		if _, ok := other[id]; !ok {
			out = append(out, id)
		}
	}
	domain.SortIDs(out)
	return out
}

// ManagedObject is one entity instance registered in a ManagedContext.
// All accessors are safe for concurrent use; state is guarded by the owning
// context's lock.
type ManagedObject struct {
	ctx    *ManagedContext
	entity *schema.Entity
	id     uuid.UUID

	values    map[string]any
	relations map[string]idSet

	// committed state as last read from the parent or store.
	committedValues    map[string]any
	committedRelations map[string]idSet
	version            int64
	seq                int64

	inserted bool
	deleted  bool
	detached bool
}

func newObject(c *ManagedContext, e *schema.Entity, rec domain.Record, seq int64) *ManagedObject {
	o := &ManagedObject{ctx: c, entity: e, id: rec.ID}
	o.commitLocked(rec, seq)
	return o
}

func insertedObject(c *ManagedContext, e *schema.Entity, id uuid.UUID) *ManagedObject {
	o := &ManagedObject{
		ctx:                c,
		entity:             e,
		id:                 id,
		values:             make(map[string]any),
		relations:          make(map[string]idSet),
		committedValues:    make(map[string]any),
		committedRelations: make(map[string]idSet),
		inserted:           true,
	}
	for _, a := range e.Attributes() {
		if !a.IsOptional() {
			o.values[a.Name()] = a.Type().ZeroValue()
		}
	}
	o.values[e.Identifier().Name()] = id
	for _, r := range e.Relationships() {
		o.relations[r.Name()] = idSet{}
	}
	return o
}

// ID returns the object's identifier.
func (o *ManagedObject) ID() uuid.UUID {
	return o.id
}

// Entity returns the entity name.
func (o *ManagedObject) Entity() string {
	return o.entity.Name()
}

// Key returns the record key of the object.
func (o *ManagedObject) Key() domain.RecordKey {
	return domain.RecordKey{Entity: o.entity.Name(), ID: o.id}
}

// Context returns the owning context.
func (o *ManagedObject) Context() *ManagedContext {
	return o.ctx
}

// Version returns the stored version the object was last read at.
func (o *ManagedObject) Version() int64 {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	return o.version
}

// Value returns an attribute value, or nil if unset or unknown.
func (o *ManagedObject) Value(name string) any {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	return o.values[name]
}

// String returns a string attribute value, or "" if unset.
func (o *ManagedObject) String(name string) string {
	s, _ := o.Value(name).(string)
	return s
}

// Set assigns an attribute value. A nil value unsets the attribute.
func (o *ManagedObject) Set(name string, value any) error {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()

	if err := o.usableLocked(); err != nil {
		return err
	}
	a, ok := o.entity.Attribute(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", domain.ErrUnknownProperty, o.entity.Name(), name)
	}
	if a.IsImmutable() {
		return fmt.Errorf("%w: %s.%s", domain.ErrImmutableAttribute, o.entity.Name(), name)
	}
	value = normalizeValue(value)
	if value != nil && !a.Type().Accepts(value) {
		return fmt.Errorf("%w: %s.%s expects %s, got %T", domain.ErrTypeMismatch, o.entity.Name(), name, a.Type(), value)
	}
	o.values[name] = value
	return nil
}

// RelatedIDs returns the identifiers currently in the relationship, sorted.
func (o *ManagedObject) RelatedIDs(rel string) []uuid.UUID {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	return o.relations[rel].sorted()
}

// Related resolves the objects in a relationship within the owning context.
func (o *ManagedObject) Related(ctx context.Context, rel string) ([]*ManagedObject, error) {
	r, ok := o.entity.Relationship(rel)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", domain.ErrUnknownProperty, o.entity.Name(), rel)
	}
	ids := o.RelatedIDs(rel)
	result := make([]*ManagedObject, 0, len(ids))
	for _, id := range ids {
		obj, err := o.ctx.Object(ctx, r.Destination().Name(), id)
		if err != nil {
			return nil, fmt.Errorf("resolving %s %s: %w", r.Qualified(), id, err)
		}
		result = append(result, obj)
	}
	return result, nil
}

// Relate adds other to the relationship and self to the inverse relationship.
func (o *ManagedObject) Relate(rel string, other *ManagedObject) error {
	return o.link(rel, other, true)
}

// Unrelate removes other from the relationship and self from the inverse relationship.
func (o *ManagedObject) Unrelate(rel string, other *ManagedObject) error {
	return o.link(rel, other, false)
}

func (o *ManagedObject) link(rel string, other *ManagedObject, add bool) error {
	if other == nil {
		return fmt.Errorf("%w: nil object", domain.ErrInvalidInput)
	}
	if other.ctx != o.ctx {
		return domain.ErrForeignContext
	}
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()

	if err := o.usableLocked(); err != nil {
		return err
	}
	if err := other.usableLocked(); err != nil {
		return err
	}
	r, ok := o.entity.Relationship(rel)
	if !ok {
		return fmt.Errorf("%w: %s.%s", domain.ErrUnknownProperty, o.entity.Name(), rel)
	}
	if other.entity != r.Destination() {
		return fmt.Errorf("%w: %s expects %s, got %s", domain.ErrTypeMismatch, r.Qualified(), r.Destination().Name(), other.entity.Name())
	}
	if add {
		o.addRelatedLocked(r, other.id)
		other.addRelatedLocked(r.Inverse(), o.id)
	} else {
		delete(o.relations[r.Name()], other.id)
		delete(other.relations[r.Inverse().Name()], o.id)
	}
	return nil
}

// addRelatedLocked adds id to r, displacing the previous value of a to-one relationship.
func (o *ManagedObject) addRelatedLocked(r *schema.Relationship, id uuid.UUID) {
	set := o.relations[r.Name()]
	if set == nil {
		set = idSet{}
		o.relations[r.Name()] = set
	}
	if !r.IsToMany() {
		for prev := range set {
			if prev == id {
				continue
			}
			delete(set, prev)
			if old, ok := o.ctx.objects[domain.RecordKey{Entity: r.Destination().Name(), ID: prev}]; ok {
				delete(old.relations[r.Inverse().Name()], o.id)
			}
		}
	}
	set[id] = struct{}{}
}

// IsInserted reports whether the object was inserted and not yet saved.
func (o *ManagedObject) IsInserted() bool {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	return o.inserted && !o.deleted
}

// IsUpdated reports whether a saved object has unsaved changes.
func (o *ManagedObject) IsUpdated() bool {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	return !o.inserted && !o.deleted && o.dirtyLocked()
}

// IsDeleted reports whether the object has been deleted in its context or store.
func (o *ManagedObject) IsDeleted() bool {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()
	return o.deleted
}

func (o *ManagedObject) usableLocked() error {
	if o.deleted {
		return fmt.Errorf("%s %s: %w", o.entity.Name(), o.id, domain.ErrObjectDeleted)
	}
	if o.detached {
		return fmt.Errorf("%s %s: %w", o.entity.Name(), o.id, domain.ErrForeignContext)
	}
	return nil
}

func (o *ManagedObject) hasChangesLocked() bool {
	if o.inserted {
		return !o.deleted
	}
	return o.deleted || o.dirtyLocked()
}

func (o *ManagedObject) dirtyLocked() bool {
	if len(o.changedAttrsLocked()) > 0 {
		return true
	}
	added, removed := o.relationDeltaLocked()
	return len(added) > 0 || len(removed) > 0
}

// changedAttrsLocked returns the attributes whose value differs from the committed value.
func (o *ManagedObject) changedAttrsLocked() map[string]bool {
	changed := make(map[string]bool)
	for _, a := range o.entity.Attributes() {
		name := a.Name()
		if !domain.ValuesEqual(o.values[name], o.committedValues[name]) {
			changed[name] = true
		}
	}
	return changed
}

// relationDeltaLocked returns the identifiers added to and removed from each
// relationship since the committed state.
func (o *ManagedObject) relationDeltaLocked() (added, removed map[string][]uuid.UUID) {
	added = make(map[string][]uuid.UUID)
	removed = make(map[string][]uuid.UUID)
	for _, r := range o.entity.Relationships() {
		name := r.Name()
		if ids := o.relations[name].minus(o.committedRelations[name]); len(ids) > 0 {
			added[name] = ids
		}
		if ids := o.committedRelations[name].minus(o.relations[name]); len(ids) > 0 {
			removed[name] = ids
		}
	}
	return added, removed
}

// snapshotLocked returns the current state as a record.
func (o *ManagedObject) snapshotLocked() domain.Record {
	rec := domain.Record{
		Entity:    o.entity.Name(),
		ID:        o.id,
		Version:   o.version,
		Values:    make(map[string]any, len(o.values)),
		Relations: make(map[string][]uuid.UUID, len(o.relations)),
	}
	for k, v := range o.values {
		rec.Values[k] = v
	}
	for k, set := range o.relations {
		rec.Relations[k] = set.sorted()
	}
	return rec
}

// commitLocked replaces both current and committed state with rec.
func (o *ManagedObject) commitLocked(rec domain.Record, seq int64) {
	o.values = make(map[string]any, len(rec.Values))
	o.committedValues = make(map[string]any, len(rec.Values))
	for k, v := range rec.Values {
		o.values[k] = v
		o.committedValues[k] = v
	}
	o.relations = make(map[string]idSet, len(o.entity.Relationships()))
	o.committedRelations = make(map[string]idSet, len(o.entity.Relationships()))
	for _, r := range o.entity.Relationships() {
		ids := rec.Relations[r.Name()]
		o.relations[r.Name()] = newIDSet(ids)
		o.committedRelations[r.Name()] = newIDSet(ids)
	}
	o.version = rec.Version
	o.seq = seq
	o.inserted = false
}

// revertLocked discards pending changes.
func (o *ManagedObject) revertLocked() {
	o.values = make(map[string]any, len(o.committedValues))
	for k, v := range o.committedValues {
		o.values[k] = v
	}
	o.relations = make(map[string]idSet, len(o.committedRelations))
	for k, set := range o.committedRelations {
		o.relations[k] = set.clone()
	}
	o.deleted = false
}

// objectState is the mutable part of an object, captured for undo.
type objectState struct {
	values    map[string]any
	relations map[string]idSet
	deleted   bool
	detached  bool
}

func (o *ManagedObject) stateLocked() objectState {
	st := objectState{
		values:    cloneValues(o.values),
		relations: make(map[string]idSet, len(o.relations)),
		deleted:   o.deleted,
		detached:  o.detached,
	}
	for k, set := range o.relations {
		st.relations[k] = set.clone()
	}
	return st
}

func (o *ManagedObject) restoreLocked(st objectState) {
	o.values = st.values
	o.relations = st.relations
	o.deleted = st.deleted
	o.detached = st.detached
}

// forgetLocked removes id from every relationship in both current and committed state.
func (o *ManagedObject) forgetLocked(key domain.RecordKey) {
	for _, r := range o.entity.Relationships() {
		if r.Destination().Name() != key.Entity {
			continue
		}
		delete(o.relations[r.Name()], key.ID)
		delete(o.committedRelations[r.Name()], key.ID)
	}
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	default:
		return v
	}
}
