package services

import (
	"github.com/google/uuid"

	"github.com/custodia-labs/roster/internal/core/domain"
)

// resolution is the outcome of reconciling one pending update with the stored record.
type resolution struct {
	// values to write, or nil to leave the stored attributes untouched.
	values map[string]any
	// added and removed identifiers per relationship name, from the object's side.
	added   map[string][]uuid.UUID
	removed map[string][]uuid.UUID
}

// resolveUpdate reconciles a pending update against the stored record.
// conflict reports whether the stored version moved since the object was read.
// The error policy is handled by the caller before resolution.
func resolveUpdate(policy domain.MergePolicy, ch pendingChange, stored *domain.Record) resolution {
	conflict := stored.Version != ch.version
	res := resolution{added: ch.added, removed: ch.removed}

	switch {
	case !conflict:
		if len(ch.changed) > 0 {
			res.values = ch.values
		}

	case policy == domain.MergePolicyPropertyObjectTrump:
		if len(ch.changed) > 0 {
			res.values = cloneValues(stored.Values)
			for name := range ch.changed {
				res.values[name] = ch.values[name]
			}
		}

	case policy == domain.MergePolicyPropertyStoreTrump:
		if len(ch.changed) > 0 {
			res.values = cloneValues(stored.Values)
			for name := range ch.changed {
				if domain.ValuesEqual(stored.Values[name], ch.committed[name]) {
					res.values[name] = ch.values[name]
				}
			}
		}

	case policy == domain.MergePolicyOverwrite:
		res.values = ch.values

	case policy == domain.MergePolicyRollback:
		return resolution{}
	}

	if policy == domain.MergePolicyOverwrite {
		res.added, res.removed = replaceRelations(ch, stored)
	}
	if res.values != nil && valuesMapEqual(res.values, stored.Values) {
		res.values = nil
	}
	return res
}

// replaceRelations computes the link changes that make every relationship the
// object touched equal to its in-memory set.
func replaceRelations(ch pendingChange, stored *domain.Record) (added, removed map[string][]uuid.UUID) {
	added = make(map[string][]uuid.UUID)
	removed = make(map[string][]uuid.UUID)
	touched := make(map[string]bool)
	for rel := range ch.added {
		touched[rel] = true
	}
	for rel := range ch.removed {
		touched[rel] = true
	}
	for rel := range touched {
		current := newIDSet(ch.current[rel])
		have := newIDSet(stored.Relations[rel])
		if ids := current.minus(have); len(ids) > 0 {
			added[rel] = ids
		}
		if ids := have.minus(current); len(ids) > 0 {
			removed[rel] = ids
		}
	}
	return added, removed
}

// refreshLocked moves the committed state to rec and reapplies the object's
// pending changes on top of it. Records older than the object's last refresh
// are ignored.
func (o *ManagedObject) refreshLocked(rec domain.Record, seq int64) {
	if seq < o.seq {
		return
	}
	changed := o.changedAttrsLocked()
	added, removed := o.relationDeltaLocked()
	pending := cloneValues(o.values)
	deleted := o.deleted

	o.commitLocked(rec, seq)

	for name := range changed {
		o.values[name] = pending[name]
	}
	for rel, ids := range added {
		set := o.relations[rel]
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
	for rel, ids := range removed {
		for _, id := range ids {
			delete(o.relations[rel], id)
		}
	}
	o.deleted = deleted
}

func cloneValues(v map[string]any) map[string]any {
	c := make(map[string]any, len(v))
	for k, val := range v {
		c[k] = val
	}
	return c
}

func valuesMapEqual(a, b map[string]any) bool {
	for k, v := range a {
		if !domain.ValuesEqual(v, b[k]) {
			return false
		}
	}
	for k, v := range b {
		if _, ok := a[k]; !ok && v != nil {
			return false
		}
	}
	return true
}
