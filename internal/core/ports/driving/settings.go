package driving

import "github.com/custodia-labs/roster/internal/core/domain"

// SettingsService manages store settings.
type SettingsService interface {
	// Get retrieves current settings, applying defaults for unset keys.
	Get() (*domain.StoreSettings, error)

	// Save persists settings.
	Save(settings *domain.StoreSettings) error

	// SetMergePolicy updates the merge policy.
	SetMergePolicy(policy domain.MergePolicy) error

	// GetDefaults returns default settings.
	GetDefaults() domain.StoreSettings
}
