// Package schema builds the object model that describes stored entities.
//
// A model is declared as a Definition and validated by Build, which
// constructs all entity descriptors before wiring relationships and their
// inverses. The resulting *Schema is immutable and safe for concurrent use.
//
// # Import Rules
//
//   - Can Import: internal/core/domain, standard library, github.com/google/uuid
//   - Cannot Import: ports, services, adapters
package schema
