package services

import (
	"fmt"

	"github.com/custodia-labs/roster/internal/core/domain"
	"github.com/custodia-labs/roster/internal/core/ports/driven"
	"github.com/custodia-labs/roster/internal/core/ports/driving"
	"github.com/custodia-labs/roster/internal/logger"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
const (
	KeyDataDir     = "store.data_dir"
	KeyInMemory    = "store.in_memory"
	KeyMergePolicy = "store.merge_policy"
	KeyVerbose     = "log.verbose"
)

// SettingsService manages store settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current settings. Invalid stored values fall back to defaults.
func (s *SettingsService) Get() (*domain.StoreSettings, error) {
	defaults := domain.DefaultStoreSettings()

	return &domain.StoreSettings{
		DataDir:     s.getString(KeyDataDir, defaults.DataDir),
		InMemory:    s.getBool(KeyInMemory, defaults.InMemory),
		MergePolicy: s.getMergePolicy(defaults.MergePolicy),
		Verbose:     s.getBool(KeyVerbose, defaults.Verbose),
	}, nil
}

// Save persists settings.
func (s *SettingsService) Save(settings *domain.StoreSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.configStore.Set(KeyDataDir, settings.DataDir); err != nil {
		return fmt.Errorf("failed to save data dir: %w", err)
	}
	if err := s.configStore.Set(KeyInMemory, settings.InMemory); err != nil {
		return fmt.Errorf("failed to save in-memory flag: %w", err)
	}
	if err := s.configStore.Set(KeyMergePolicy, settings.MergePolicy.String()); err != nil {
		return fmt.Errorf("failed to save merge policy: %w", err)
	}
	if err := s.configStore.Set(KeyVerbose, settings.Verbose); err != nil {
		return fmt.Errorf("failed to save verbose flag: %w", err)
	}
	return s.configStore.Save()
}

// SetMergePolicy updates the merge policy.
func (s *SettingsService) SetMergePolicy(policy domain.MergePolicy) error {
	if !policy.IsValid() {
		return fmt.Errorf("%w: merge policy %q", domain.ErrInvalidInput, policy)
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	settings.MergePolicy = policy
	return s.Save(settings)
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.StoreSettings {
	return domain.DefaultStoreSettings()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getMergePolicy(defaultVal domain.MergePolicy) domain.MergePolicy {
	val := s.configStore.GetString(KeyMergePolicy)
	if val == "" {
		return defaultVal
	}
	policy := domain.MergePolicy(val)
	if !policy.IsValid() {
		logger.Warn("ignoring unknown merge policy %q in %s, using %s", val, s.configStore.Path(), defaultVal)
		return defaultVal
	}
	return policy
}
