// Package state persists the session record as a single YAML document.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/msageha/baton/internal/model"
	yamlutil "github.com/msageha/baton/internal/yaml"
)

// ErrNoSession is returned by Load when no session file exists yet.
var ErrNoSession = errors.New("no session: run 'baton start' first")

const (
	StateDir    = "state"
	SessionFile = "session.yaml"
)

// Store reads and writes .baton/state/session.yaml. Writes are atomic and keep
// the previous version in session.yaml.bak.
type Store struct {
	batonDir string
	path     string
}

func New(batonDir string) *Store {
	return &Store{
		batonDir: batonDir,
		path:     filepath.Join(batonDir, StateDir, SessionFile),
	}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *Store) Load(ctx context.Context) (*model.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	return decode(content)
}

func decode(content []byte) (*model.SessionState, error) {
	var st model.SessionState
	if err := yamlutil.Decode(content, yamlutil.FileTypeSessionState, &st); err != nil {
		return nil, err
	}
	if st.Steps == nil {
		st.Steps = make(map[string]*model.StepRecord)
	}
	if st.Engine.Todos == nil {
		st.Engine.Todos = make(map[string]*model.ItemRuntimeState)
	}
	return &st, nil
}

func (s *Store) Save(ctx context.Context, st *model.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if st.SchemaVersion == 0 {
		st.SchemaVersion = model.SessionSchemaVersion
	}
	if st.FileType == "" {
		st.FileType = model.SessionFileType
	}
	if err := yamlutil.AtomicWrite(s.path, st); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Restore quarantines the current session file and puts the backup back in
// place. It returns the quarantine path, empty when there was no current file.
func (s *Store) Restore() (string, error) {
	if _, err := os.Stat(s.path + ".bak"); err != nil {
		return "", fmt.Errorf("%w: %s.bak", yamlutil.ErrNoBackup, s.path)
	}
	quarantined, err := yamlutil.RecoverCorruptedFile(s.batonDir, s.path)
	if err != nil {
		return quarantined, err
	}
	content, err := os.ReadFile(s.path)
	if err != nil {
		return quarantined, fmt.Errorf("read restored session: %w", err)
	}
	if _, err := decode(content); err != nil {
		return quarantined, fmt.Errorf("restored session is invalid: %w", err)
	}
	return quarantined, nil
}
