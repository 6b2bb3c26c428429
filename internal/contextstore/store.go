// Package contextstore keeps the side products of a run under .baton/context:
// recorded item outputs, learnings, issues and the audit trail.
package contextstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/msageha/baton/internal/events"
	"github.com/msageha/baton/internal/lock"
	yamlutil "github.com/msageha/baton/internal/yaml"
)

const (
	OutputsFile   = "outputs.yaml"
	LearningsFile = "learnings.md"
	IssuesFile    = "issues.md"
	AuditFile     = "audit.jsonl"
)

type outputsDocument struct {
	SchemaVersion int                          `yaml:"schema_version"`
	FileType      string                       `yaml:"file_type"`
	Outputs       map[string]map[string]string `yaml:"outputs"`
}

type Option func(*Store)

// WithAudit sets the audit log rotation size and checksum flag.
func WithAudit(maxBytes int64, checksum bool) Option {
	return func(s *Store) {
		s.auditMaxBytes = maxBytes
		s.auditChecksum = checksum
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is a file-backed context store. Each file is guarded by its own lock.
type Store struct {
	dir   string
	locks *lock.MutexMap
	now   func() time.Time

	auditMu       sync.Mutex
	audit         *events.AuditLogger
	auditMaxBytes int64
	auditChecksum bool
}

func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:   dir,
		locks: lock.NewMutexMap(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Init creates the context directory and an empty outputs file. Existing
// content is kept.
func (s *Store) Init() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create context dir: %w", err)
	}
	s.locks.Lock(OutputsFile)
	defer s.locks.Unlock(OutputsFile)

	if _, err := os.Stat(s.path(OutputsFile)); err == nil {
		return nil
	}
	return s.writeOutputs(map[string]map[string]string{})
}

// WriteOutput merges outputs into the recorded outputs of itemID.
func (s *Store) WriteOutput(itemID string, outputs map[string]string) error {
	if len(outputs) == 0 {
		return nil
	}
	s.locks.Lock(OutputsFile)
	defer s.locks.Unlock(OutputsFile)

	all, err := s.readOutputs()
	if err != nil {
		return err
	}
	item := all[itemID]
	if item == nil {
		item = make(map[string]string, len(outputs))
		all[itemID] = item
	}
	for k, v := range outputs {
		item[k] = v
	}
	return s.writeOutputs(all)
}

func (s *Store) ReadOutputs() (map[string]map[string]string, error) {
	s.locks.Lock(OutputsFile)
	defer s.locks.Unlock(OutputsFile)
	return s.readOutputs()
}

func (s *Store) readOutputs() (map[string]map[string]string, error) {
	path := s.path(OutputsFile)
	var doc outputsDocument
	if err := yamlutil.DecodeFile(path, yamlutil.FileTypeOutputs, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]map[string]string{}, nil
		}
		return nil, fmt.Errorf("read outputs: %w", err)
	}
	if doc.Outputs == nil {
		doc.Outputs = map[string]map[string]string{}
	}
	return doc.Outputs, nil
}

func (s *Store) writeOutputs(all map[string]map[string]string) error {
	doc := outputsDocument{
		SchemaVersion: yamlutil.SchemaVersion(yamlutil.FileTypeOutputs),
		FileType:      yamlutil.FileTypeOutputs,
		Outputs:       all,
	}
	if err := yamlutil.AtomicWrite(s.path(OutputsFile), doc); err != nil {
		return fmt.Errorf("write outputs: %w", err)
	}
	return nil
}

func (s *Store) AppendLearning(itemID, text string) error {
	return s.appendMarkdown(LearningsFile, "Learnings", itemID, text)
}

func (s *Store) AppendIssue(itemID, text string) error {
	return s.appendMarkdown(IssuesFile, "Issues", itemID, text)
}

// appendMarkdown adds one entry under an item heading. The file title is
// written when the file is created.
func (s *Store) appendMarkdown(name, title, itemID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	s.locks.Lock(name)
	defer s.locks.Unlock(name)

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create context dir: %w", err)
	}
	path := s.path(name)
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	var b strings.Builder
	if os.IsNotExist(statErr) {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	fmt.Fprintf(&b, "## %s (%s)\n\n%s\n\n", itemID, s.now().UTC().Format(time.RFC3339), text)
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("append %s: %w", name, err)
	}
	return nil
}

// AppendAudit records a triage or insertion note in audit.jsonl.
func (s *Store) AppendAudit(entry string) error {
	logger, err := s.auditLogger()
	if err != nil {
		return err
	}
	return logger.LogRaw(entry)
}

func (s *Store) auditLogger() (*events.AuditLogger, error) {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()

	if s.audit != nil {
		return s.audit, nil
	}
	logger, err := events.NewAuditLogger(s.path(AuditFile), s.auditMaxBytes)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	logger.EnableChecksum(s.auditChecksum)
	s.audit = logger
	return logger, nil
}

// AuditPath is where audit entries are written.
func (s *Store) AuditPath() string {
	return s.path(AuditFile)
}

func (s *Store) Close() error {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	if s.audit == nil {
		return nil
	}
	err := s.audit.Close()
	s.audit = nil
	return err
}
