package domain

import "fmt"

const unknownDescription = "Unknown"

// MergePolicy decides how a save resolves conflicts with changes already in the store.
type MergePolicy string

// Available merge policies.
const (
	// MergePolicyError rejects a conflicting save with ErrMergeConflict.
	MergePolicyError MergePolicy = "error"

	// MergePolicyPropertyObjectTrump keeps the saving context's changed properties
	// and takes the stored values for everything else.
	MergePolicyPropertyObjectTrump MergePolicy = "propertyObjectTrump"

	// MergePolicyPropertyStoreTrump keeps stored changes and only applies in-memory
	// changes to properties the store did not change.
	MergePolicyPropertyStoreTrump MergePolicy = "propertyStoreTrump"

	// MergePolicyOverwrite replaces the stored object with the in-memory one.
	MergePolicyOverwrite MergePolicy = "overwrite"

	// MergePolicyRollback discards in-memory changes to conflicting objects.
	MergePolicyRollback MergePolicy = "rollback"
)

// IsValid returns true if the merge policy is recognised.
func (p MergePolicy) IsValid() bool {
	switch p {
	case MergePolicyError, MergePolicyPropertyObjectTrump, MergePolicyPropertyStoreTrump,
		MergePolicyOverwrite, MergePolicyRollback:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (p MergePolicy) String() string {
	return string(p)
}

// Description returns a human-readable description of the policy.
func (p MergePolicy) Description() string {
	switch p {
	case MergePolicyError:
		return "Error (reject conflicting saves)"
	case MergePolicyPropertyObjectTrump:
		return "Property Object Trump (in-memory properties win)"
	case MergePolicyPropertyStoreTrump:
		return "Property Store Trump (stored properties win)"
	case MergePolicyOverwrite:
		return "Overwrite (in-memory object replaces stored)"
	case MergePolicyRollback:
		return "Rollback (discard in-memory changes)"
	default:
		return unknownDescription
	}
}

// ParseMergePolicy converts a configuration string to a MergePolicy.
// An empty string yields the default policy.
func ParseMergePolicy(s string) (MergePolicy, error) {
	if s == "" {
		return DefaultMergePolicy, nil
	}
	p := MergePolicy(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: unknown merge policy %q", ErrInvalidInput, s)
	}
	return p, nil
}

// DefaultMergePolicy is applied to the shared view context.
const DefaultMergePolicy = MergePolicyPropertyObjectTrump

// AllMergePolicies returns all available merge policies.
func AllMergePolicies() []MergePolicy {
	return []MergePolicy{
		MergePolicyError,
		MergePolicyPropertyObjectTrump,
		MergePolicyPropertyStoreTrump,
		MergePolicyOverwrite,
		MergePolicyRollback,
	}
}

// StoreSettings holds store manager configuration.
type StoreSettings struct {
	// DataDir is the directory of the on-disk store. Empty means ~/.roster/data.
	DataDir string

	// InMemory selects a throwaway store with no persistent medium.
	InMemory bool

	// MergePolicy is applied to the view context and background contexts.
	MergePolicy MergePolicy

	// Verbose enables debug logging.
	Verbose bool
}

// DefaultStoreSettings returns settings with sensible defaults.
func DefaultStoreSettings() StoreSettings {
	return StoreSettings{
		MergePolicy: DefaultMergePolicy,
	}
}

// Validate checks the settings for consistency.
func (s StoreSettings) Validate() error {
	if !s.MergePolicy.IsValid() {
		return fmt.Errorf("%w: unknown merge policy %q", ErrInvalidInput, s.MergePolicy)
	}
	return nil
}
