package config

import (
	"fmt"
	"sync/atomic"

	"github.com/sentrygate/sentrygate/internal/models"
)

// Provider hands out configuration snapshots to pipeline runs.
// A run reads one snapshot at its start and never sees a mid-run change.
type Provider interface {
	Snapshot() *Config
}

// Store is a Provider whose snapshot can be swapped at runtime, either by
// a config file reload or by the operator mode endpoint.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a Store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Snapshot returns the current configuration. The returned value must be
// treated as read-only.
func (s *Store) Snapshot() *Config {
	return s.current.Load()
}

// Replace validates and installs a full new configuration.
func (s *Store) Replace(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("rejecting config reload: %w", err)
	}
	s.current.Store(cfg)
	return nil
}

// SetMode installs a copy of the current config with a new automation mode.
// Unknown modes are rejected, never silently defaulted.
func (s *Store) SetMode(mode models.AutomationMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown automation mode %q", mode)
	}
	next := *s.current.Load()
	next.Automation.Mode = mode
	s.current.Store(&next)
	return nil
}
