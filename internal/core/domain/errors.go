package domain

import "errors"

// Domain errors represent persistence and model failures.
// These are distinct from infrastructure errors, which are wrapped around them.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity with the same identifier already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Schema Errors.

	// ErrInvalidSchema indicates a malformed schema definition.
	// Raised at build time, before any store is opened.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrIncompatibleSchema indicates the on-disk store was created with a different model.
	ErrIncompatibleSchema = errors.New("incompatible schema")

	// ErrUnknownEntity indicates an entity name not present in the schema.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrUnknownProperty indicates an attribute or relationship name not present on the entity.
	ErrUnknownProperty = errors.New("unknown property")

	// Object Graph Errors.

	// ErrTypeMismatch indicates a value does not match the attribute type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrImmutableAttribute indicates an attempt to change the identifier after creation.
	ErrImmutableAttribute = errors.New("attribute is immutable")

	// ErrObjectDeleted indicates an operation on an object that was deleted.
	ErrObjectDeleted = errors.New("object deleted")

	// ErrForeignContext indicates two objects from different contexts were related.
	ErrForeignContext = errors.New("object belongs to another context")

	// ErrValidation indicates a save was rejected by schema constraints.
	ErrValidation = errors.New("validation failed")

	// ErrDeleteDenied indicates a deny delete rule blocked a deletion.
	ErrDeleteDenied = errors.New("delete denied")

	// ErrMergeConflict indicates a save conflicted with the store under the error merge policy.
	ErrMergeConflict = errors.New("merge conflict")

	// Store Errors.

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store closed")

	// ErrNotInitialized indicates the shared persistence has not been initialised.
	ErrNotInitialized = errors.New("persistence not initialized")
)
