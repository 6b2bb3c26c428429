package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/baton/internal/model"
)

const (
	ConfigFile      = "config.yaml"
	SessionLockFile = "session.lock"
)

// ErrNoWorkspace is returned when no .baton directory can be found.
var ErrNoWorkspace = errors.New("no .baton workspace found (run 'baton init')")

// FindWorkspace returns the .baton directory in start or its nearest
// ancestor.
func FindWorkspace(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", start, err)
	}
	for {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoWorkspace
		}
		dir = parent
	}
}

// LoadConfig reads config.yaml from batonDir with defaults applied. A missing
// file yields the defaults.
func LoadConfig(batonDir string) (model.Config, error) {
	var cfg model.Config
	data, err := os.ReadFile(filepath.Join(batonDir, ConfigFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg.WithDefaults(), nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// Resolve makes a workspace-relative path absolute. Absolute paths are kept.
func Resolve(batonDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(batonDir, path)
}
