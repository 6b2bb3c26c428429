// Package model defines baton's plan items, actor results, session state and configuration.
package model

type Config struct {
	Project ProjectConfig `yaml:"project"`
	Engine  EngineConfig  `yaml:"engine"`
	Triage  TriageConfig  `yaml:"triage"`
	Logging LoggingConfig `yaml:"logging"`
	Audit   AuditConfig   `yaml:"audit"`
	Watcher WatcherConfig `yaml:"watcher"`
	Lock    LockConfig    `yaml:"lock"`
}

type ProjectConfig struct {
	Name string `yaml:"name"`
}

type EngineConfig struct {
	Mode           Mode           `yaml:"mode"`
	CommitStrategy CommitStrategy `yaml:"commit_strategy"`
	PlanPath       string         `yaml:"plan_path"`
	RecipePath     string         `yaml:"recipe_path"`
}

type TriageConfig struct {
	// DestructivePatterns replaces the built-in scope patterns when non-empty.
	DestructivePatterns []PatternConfig `yaml:"destructive_patterns"`
}

type PatternConfig struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type AuditConfig struct {
	MaxLogBytes int64 `yaml:"max_log_bytes"`
	Checksum    bool  `yaml:"checksum"`
}

type WatcherConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

type LockConfig struct {
	TimeoutSec int `yaml:"timeout_sec"`
}

// WithDefaults fills zero values with the shipped defaults.
func (c Config) WithDefaults() Config {
	if c.Engine.Mode == "" {
		c.Engine.Mode = ModeFull
	}
	if c.Engine.CommitStrategy == "" {
		c.Engine.CommitStrategy = CommitPerItem
	}
	if c.Engine.PlanPath == "" {
		c.Engine.PlanPath = "plan.yaml"
	}
	if c.Engine.RecipePath == "" {
		c.Engine.RecipePath = "recipe.toml"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Audit.MaxLogBytes <= 0 {
		c.Audit.MaxLogBytes = 10 * 1024 * 1024
	}
	if c.Watcher.DebounceMs <= 0 {
		c.Watcher.DebounceMs = 300
	}
	if c.Lock.TimeoutSec <= 0 {
		c.Lock.TimeoutSec = 5
	}
	return c
}
