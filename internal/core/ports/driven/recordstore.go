package driven

import (
	"context"

	"github.com/google/uuid"

	"github.com/custodia-labs/roster/internal/core/domain"
)

// RecordStore persists entity records and relationship links for one schema.
// Backed by SQLite on disk or by maps in memory.
type RecordStore interface {
	// Fetch retrieves one record with its relations.
	// Returns domain.ErrNotFound if the record does not exist.
	Fetch(ctx context.Context, entity string, id uuid.UUID) (*domain.Record, error)

	// FetchAll retrieves every record of an entity, ordered by identifier.
	FetchAll(ctx context.Context, entity string) ([]domain.Record, error)

	// Apply writes a change set atomically.
	// Inserts of existing records return domain.ErrAlreadyExists; updates whose
	// expected version is stale return domain.ErrMergeConflict.
	Apply(ctx context.Context, changes domain.ChangeSet) error

	// Path returns the store location, or ":memory:" for in-memory stores.
	Path() string

	// Close releases the store.
	Close() error
}
