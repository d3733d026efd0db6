package cli

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-labs/roster/internal/core/domain"
)

func parseID(kind, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s id %q", domain.ErrInvalidInput, kind, s)
	}
	return id, nil
}
