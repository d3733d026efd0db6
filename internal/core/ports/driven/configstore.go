package driven

// ConfigStore holds the persisted store settings under dotted keys:
// store.data_dir, store.in_memory, store.merge_policy and log.verbose.
// The file adapter writes each key prefix as a TOML table in
// ~/.roster/config.toml; the memory adapter keeps them in a map for tests.
type ConfigStore interface {
	// Get returns the raw value of key and whether it is set.
	Get(key string) (any, bool)

	// GetString returns a string setting such as store.merge_policy,
	// or "" when the key is unset or not a string.
	GetString(key string) string

	// GetBool returns a flag setting such as store.in_memory,
	// or false when the key is unset or not a boolean.
	GetBool(key string) bool

	// Set writes key and persists the whole configuration. A failed write
	// leaves the previous value in place.
	Set(key string, value any) error

	// Save persists every setting.
	Save() error

	// Load replaces the in-memory settings with the persisted ones.
	Load() error

	// Path returns where settings are persisted, ":memory:" for the memory adapter.
	Path() string
}
