// Package domain defines the core entities and value types for the roster store.
//
// This package is part of the hexagonal architecture's innermost layer.
// It defines the fundamental types:
//
//   - Team, Person: Snapshots of the two roster entities
//   - Identifiable: The stable identity surface shared by entities
//   - Record, ChangeSet: The store-level representation of entity instances
//   - MergePolicy, StoreSettings: Store manager configuration
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library, github.com/google/uuid
//   - Cannot Import: Any internal/ package
package domain
