// Package config loads daemon settings from the environment with sensible
// defaults for local development.
package config
