package services

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/roster/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/roster/internal/core/domain"
	"github.com/custodia-labs/roster/internal/logger"
)

func TestNewSettingsService(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	require.NotNil(t, service)
}

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	settings, err := service.Get()

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultStoreSettings(), *settings)
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set(KeyDataDir, "/var/lib/roster")
	_ = store.Set(KeyInMemory, true)
	_ = store.Set(KeyMergePolicy, "overwrite")
	_ = store.Set(KeyVerbose, true)

	settings, err := NewSettingsService(store).Get()

	require.NoError(t, err)
	assert.Equal(t, "/var/lib/roster", settings.DataDir)
	assert.True(t, settings.InMemory)
	assert.Equal(t, domain.MergePolicyOverwrite, settings.MergePolicy)
	assert.True(t, settings.Verbose)
}

func TestSettingsService_Get_InvalidPolicyReturnsDefault(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set(KeyMergePolicy, "last_writer_wins")

	settings, err := NewSettingsService(store).Get()

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultMergePolicy, settings.MergePolicy)
}

func TestSettingsService_Get_InvalidPolicyWarns(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetVerbose(true)
	t.Cleanup(func() {
		logger.SetVerbose(false)
		logger.SetOutput(os.Stderr)
	})

	store := memory.NewConfigStore()
	_ = store.Set(KeyMergePolicy, "last_writer_wins")

	_, err := NewSettingsService(store).Get()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "[WARN]")
	assert.Contains(t, buf.String(), `"last_writer_wins"`)
}

func TestSettingsService_Save(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store)

	err := service.Save(&domain.StoreSettings{
		DataDir:     "/tmp/roster",
		MergePolicy: domain.MergePolicyRollback,
		Verbose:     true,
	})

	require.NoError(t, err)
	assert.Equal(t, "/tmp/roster", store.GetString(KeyDataDir))
	assert.Equal(t, "rollback", store.GetString(KeyMergePolicy))
	assert.True(t, store.GetBool(KeyVerbose))
	assert.False(t, store.GetBool(KeyInMemory))
}

func TestSettingsService_Save_RejectsInvalid(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store)

	err := service.Save(&domain.StoreSettings{MergePolicy: "sometimes"})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, exists := store.Get(KeyMergePolicy)
	assert.False(t, exists)
}

func TestSettingsService_SetMergePolicy(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set(KeyDataDir, "/srv/roster")
	service := NewSettingsService(store)

	require.NoError(t, service.SetMergePolicy(domain.MergePolicyPropertyStoreTrump))

	settings, err := service.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.MergePolicyPropertyStoreTrump, settings.MergePolicy)
	assert.Equal(t, "/srv/roster", settings.DataDir, "other settings preserved")

	assert.ErrorIs(t, service.SetMergePolicy("bogus"), domain.ErrInvalidInput)
}

func TestSettingsService_GetDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore())

	assert.Equal(t, domain.DefaultStoreSettings(), service.GetDefaults())
}
