package config

import "time"

// Default values applied by [LoadFromReader] when the corresponding YAML
// field is left unset. Named per the defaults listed in the specification's
// component design and external-interface sections.
const (
	defaultBaseBackoff        = 500 * time.Millisecond
	defaultMaxBackoff         = 60 * time.Second
	defaultPauseSweepInterval = 1 * time.Second
	defaultStoreTimeout       = 5 * time.Second
	defaultWindowTTL          = 300 * time.Second
	defaultConnectionTTL      = 24 * time.Hour
	defaultJobTTL             = 30 * 24 * time.Hour
	defaultDialTimeout        = 5 * time.Second
)
