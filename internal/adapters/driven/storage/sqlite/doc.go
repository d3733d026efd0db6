// Package sqlite provides a SQLite-based implementation of driven.RecordStore.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation.
//
// # Schema
//
// Store metadata is managed through versioned migrations stored in the
// migrations/ directory. Entity and join tables are generated from the schema
// model on first open:
//
//   - one table per entity, keyed by the identifier attribute, with a
//     version column used for optimistic concurrency
//   - one join table per relationship pair, named after the owning side
//     (e.g., team_members), whose rows are removed with either endpoint
//
// The model fingerprint is recorded in model_metadata. Opening a store with a
// model whose fingerprint differs fails with domain.ErrIncompatibleSchema.
//
// # Data Location
//
// By default, the database is stored at ~/.roster/data/<model>.sqlite
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
