package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/internal/recipe"
)

func TestRun_CreatesWorkspace(t *testing.T) {
	projectDir := t.TempDir()

	base, err := Run(projectDir, "demo")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if base != filepath.Join(projectDir, DirName) {
		t.Errorf("base = %s", base)
	}

	for _, d := range workspaceDirs {
		info, err := os.Stat(filepath.Join(base, d))
		if err != nil || !info.IsDir() {
			t.Errorf("directory %s missing", d)
		}
	}
	for _, f := range []string{ConfigFile, "recipe.toml", "plan.example.yaml", filepath.Join("locks", SessionLockFile)} {
		if _, err := os.Stat(filepath.Join(base, f)); err != nil {
			t.Errorf("file %s missing: %v", f, err)
		}
	}

	cfg, err := LoadConfig(base)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Project.Name != "demo" {
		t.Errorf("project name = %q", cfg.Project.Name)
	}
	if cfg.Engine.Mode != model.ModeFull || cfg.Watcher.DebounceMs != 300 || !cfg.Audit.Checksum {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if _, err := recipe.Load(filepath.Join(base, "recipe.toml")); err != nil {
		t.Errorf("written recipe does not load: %v", err)
	}
}

func TestRun_DefaultProjectName(t *testing.T) {
	projectDir := filepath.Join(t.TempDir(), "my-project")
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		t.Fatal(err)
	}
	base, err := Run(projectDir, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	cfg, err := LoadConfig(base)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Project.Name != "my-project" {
		t.Errorf("project name = %q", cfg.Project.Name)
	}
}

func TestRun_AlreadyExists(t *testing.T) {
	projectDir := t.TempDir()
	if _, err := Run(projectDir, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(projectDir, ""); err == nil {
		t.Error("expected error on second init")
	}
}

func TestFindWorkspace(t *testing.T) {
	root := t.TempDir()
	base, err := Run(root, "")
	if err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindWorkspace(nested)
	if err != nil {
		t.Fatalf("FindWorkspace: %v", err)
	}
	if got != base {
		t.Errorf("got %s, want %s", got, base)
	}

	if _, err := FindWorkspace(t.TempDir()); err != ErrNoWorkspace {
		t.Errorf("expected ErrNoWorkspace, got %v", err)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.PlanPath != "plan.yaml" || cfg.Lock.TimeoutSec != 5 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve("/w/.baton", "plan.yaml"); got != "/w/.baton/plan.yaml" {
		t.Errorf("got %s", got)
	}
	if got := Resolve("/w/.baton", "/abs/plan.yaml"); got != "/abs/plan.yaml" {
		t.Errorf("got %s", got)
	}
}
