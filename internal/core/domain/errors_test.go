package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are distinct
func TestErrors_Existence(t *testing.T) {
	all := []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrInvalidInput,
		ErrInvalidSchema,
		ErrIncompatibleSchema,
		ErrUnknownEntity,
		ErrUnknownProperty,
		ErrTypeMismatch,
		ErrImmutableAttribute,
		ErrObjectDeleted,
		ErrForeignContext,
		ErrValidation,
		ErrDeleteDenied,
		ErrMergeConflict,
		ErrStoreClosed,
		ErrNotInitialized,
	}

	for i, err := range all {
		assert.NotNil(t, err)
		assert.NotEmpty(t, err.Error())
		for j, other := range all {
			if i != j {
				assert.False(t, errors.Is(err, other), "%v should not match %v", err, other)
			}
		}
	}
}

// TestErrNotFound tests ErrNotFound error
func TestErrNotFound(t *testing.T) {
	assert.Equal(t, "not found", ErrNotFound.Error())
	assert.True(t, errors.Is(ErrNotFound, ErrNotFound))
	assert.False(t, errors.Is(ErrNotFound, ErrAlreadyExists))
}

func TestErrInvalidSchema_Wrapped(t *testing.T) {
	err := fmt.Errorf("%w: relationship Team.members has no inverse", ErrInvalidSchema)

	assert.ErrorIs(t, err, ErrInvalidSchema)
	assert.Contains(t, err.Error(), "invalid schema")
}
