package env

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/custodia-labs/roster/internal/core/domain"
)

// Overrides holds the settings found in the environment. Unset variables
// stay nil.
type Overrides struct {
	DataDir     *string `env:"ROSTER_DATA_DIR"`
	InMemory    *bool   `env:"ROSTER_IN_MEMORY"`
	MergePolicy *string `env:"ROSTER_MERGE_POLICY"`
	Verbose     *bool   `env:"ROSTER_VERBOSE"`
}

// Parse loads overrides from the process environment.
func Parse() (Overrides, error) {
	var o Overrides
	if err := env.Parse(&o); err != nil {
		return Overrides{}, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// Apply writes every set override into s. An unknown merge policy leaves s
// untouched.
func (o Overrides) Apply(s *domain.StoreSettings) error {
	next := *s
	if o.DataDir != nil {
		next.DataDir = *o.DataDir
	}
	if o.InMemory != nil {
		next.InMemory = *o.InMemory
	}
	if o.MergePolicy != nil {
		policy, err := domain.ParseMergePolicy(*o.MergePolicy)
		if err != nil {
			return fmt.Errorf("ROSTER_MERGE_POLICY: %w", err)
		}
		next.MergePolicy = policy
	}
	if o.Verbose != nil {
		next.Verbose = *o.Verbose
	}
	*s = next
	return nil
}

// ApplyEnv parses the environment and applies it to s.
func ApplyEnv(s *domain.StoreSettings) error {
	o, err := Parse()
	if err != nil {
		return err
	}
	return o.Apply(s)
}
