package domain

import (
	"bytes"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Record is the store-level representation of one entity instance.
// Values holds attribute values keyed by attribute name. Supported value types are
// uuid.UUID, string, int64, bool and time.Time; a nil value means the attribute is unset.
type Record struct {
	// Entity is the schema entity name (e.g., "Team").
	Entity string

	// ID is the primary key.
	ID uuid.UUID

	// Version increments on every stored change and drives conflict detection.
	Version int64

	// Values contains attribute values.
	Values map[string]any

	// Relations contains related identifiers keyed by relationship name.
	Relations map[string][]uuid.UUID
}

// Key returns the record's key.
func (r Record) Key() RecordKey {
	return RecordKey{Entity: r.Entity, ID: r.ID}
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	c := Record{
		Entity:    r.Entity,
		ID:        r.ID,
		Version:   r.Version,
		Values:    make(map[string]any, len(r.Values)),
		Relations: make(map[string][]uuid.UUID, len(r.Relations)),
	}
	for k, v := range r.Values {
		c.Values[k] = v
	}
	for k, ids := range r.Relations {
		c.Relations[k] = append([]uuid.UUID(nil), ids...)
	}
	return c
}

// RecordKey identifies a record.
type RecordKey struct {
	Entity string
	ID     uuid.UUID
}

// Link is one row of a many-to-many association, always expressed from the
// owning side of the relationship pair.
type Link struct {
	// Entity is the owning entity name.
	Entity string

	// Relationship is the owning relationship name.
	Relationship string

	// SourceID is the owning-side identifier.
	SourceID uuid.UUID

	// TargetID is the destination identifier.
	TargetID uuid.UUID
}

// RecordUpdate is an update guarded by the version the writer expects to replace.
type RecordUpdate struct {
	Record Record

	// ExpectedVersion is the stored version this update replaces.
	ExpectedVersion int64
}

// ChangeSet is one atomic unit of work applied to a store.
// Stores write attribute values from Inserts and Updates; relationship
// membership changes travel only as LinkAdds and LinkRemoves.
type ChangeSet struct {
	Inserts     []Record
	Updates     []RecordUpdate
	Deletes     []RecordKey
	LinkAdds    []Link
	LinkRemoves []Link
}

// IsEmpty reports whether the change set has nothing to apply.
func (c ChangeSet) IsEmpty() bool {
	return len(c.Inserts) == 0 && len(c.Updates) == 0 && len(c.Deletes) == 0 &&
		len(c.LinkAdds) == 0 && len(c.LinkRemoves) == 0
}

// ValuesEqual compares two attribute values of the supported types.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, ok := a.(time.Time)
	if ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

// SortIDs sorts identifiers in their canonical string order.
func SortIDs(ids []uuid.UUID) {
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
}
