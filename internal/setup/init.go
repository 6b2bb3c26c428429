// Package setup creates and locates the .baton workspace.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/baton/internal/model"
	atomicyaml "github.com/msageha/baton/internal/yaml"
	"github.com/msageha/baton/templates"
)

// DirName is the workspace directory created in the project root.
const DirName = ".baton"

var workspaceDirs = []string{
	"inbox/processed",
	"inbox/rejected",
	"state",
	"context",
	"logs",
	"locks",
	"quarantine",
}

// Run initializes .baton/ in projectDir. projectName defaults to the
// directory basename.
func Run(projectDir, projectName string) (string, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}
	base := filepath.Join(absDir, DirName)
	if _, err := os.Stat(base); err == nil {
		return "", fmt.Errorf("%s already exists", base)
	}

	for _, d := range workspaceDirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	cfg, err := generateConfig(absDir, projectName)
	if err != nil {
		return "", fmt.Errorf("generate config: %w", err)
	}
	if err := atomicyaml.AtomicWrite(filepath.Join(base, ConfigFile), cfg); err != nil {
		return "", fmt.Errorf("write %s: %w", ConfigFile, err)
	}

	if err := copyTemplateFile("recipe.toml", filepath.Join(base, cfg.Engine.RecipePath)); err != nil {
		return "", err
	}
	if err := copyTemplateFile("plan.example.yaml", filepath.Join(base, "plan.example.yaml")); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(base, "locks", SessionLockFile), nil, 0600); err != nil {
		return "", fmt.Errorf("create %s: %w", SessionLockFile, err)
	}
	return base, nil
}

func copyTemplateFile(name, dst string) error {
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func generateConfig(projectDir, projectName string) (*model.Config, error) {
	data, err := fs.ReadFile(templates.FS, ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}
	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}
	if projectName != "" {
		cfg.Project.Name = projectName
	} else {
		cfg.Project.Name = filepath.Base(projectDir)
	}
	cfg = cfg.WithDefaults()
	return &cfg, nil
}
