// Package env reads store settings overrides from ROSTER_* environment
// variables. Overrides are applied on top of the config file and below
// command-line flags.
package env
