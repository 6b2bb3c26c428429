// Package inbox applies result files dropped into .baton/inbox.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/baton/internal/events"
	"github.com/msageha/baton/internal/logging"
	"github.com/msageha/baton/internal/model"
)

const (
	ProcessedDir    = "processed"
	RejectedDir     = "rejected"
	DefaultDebounce = 300 * time.Millisecond
)

// Submission is the content of one result file.
type Submission struct {
	StepID string       `json:"step_id" yaml:"step_id"`
	Result model.Result `json:"result" yaml:"result"`
}

// Completer applies one submitted result.
type Completer func(ctx context.Context, stepID string, result model.Result) error

// NextFunc fetches the instruction that follows an applied result.
type NextFunc func(ctx context.Context) (any, error)

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func WithBus(b *events.Bus) Option {
	return func(w *Watcher) { w.bus = b }
}

func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithNext reports the following instruction after every applied result.
func WithNext(fn NextFunc) Option {
	return func(w *Watcher) { w.next = fn }
}

// Watcher processes result files one at a time. Bursts of events for the same
// file are debounced and concurrent processing of one file is collapsed.
type Watcher struct {
	dir      string
	complete Completer
	next     NextFunc
	debounce time.Duration
	bus      *events.Bus
	logger   *logging.Logger
	group    singleflight.Group
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New(dir string, complete Completer, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		complete: complete,
		debounce: DefaultDebounce,
		logger:   logging.Discard(),
		now:      time.Now,
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Outcome describes what happened to one file.
type Outcome struct {
	File    string
	StepID  string
	Applied bool
	MovedTo string
	Err     error
}

// Run watches the inbox until ctx is cancelled. Files already present are
// processed first.
func (w *Watcher) Run(ctx context.Context) error {
	for _, d := range []string{w.dir, filepath.Join(w.dir, ProcessedDir), filepath.Join(w.dir, RejectedDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("ensure dir %s: %w", d, err)
		}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log(logging.LevelInfo, "watching dir=%s debounce=%s", w.dir, w.debounce)

	w.Scan(ctx)

	ready := make(chan string, 16)
	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			w.log(logging.LevelInfo, "watcher stopped")
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) && isResultFile(event.Name) {
				w.log(logging.LevelDebug, "fsnotify event=%s file=%s", event.Op, event.Name)
				w.schedule(ctx, event.Name, ready)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log(logging.LevelError, "fsnotify error=%v", err)
		case path := <-ready:
			w.Process(ctx, path)
		}
	}
}

// schedule (re)arms the debounce timer for path. The timer hands the path
// back to the Run loop so files are processed sequentially.
func (w *Watcher) schedule(ctx context.Context, path string, ready chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// Scan processes every result file currently in the inbox, in name order.
func (w *Watcher) Scan(ctx context.Context) []Outcome {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log(logging.LevelError, "scan dir=%s error=%v", w.dir, err)
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isResultFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []Outcome
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		out = append(out, w.Process(ctx, filepath.Join(w.dir, name)))
	}
	return out
}

// Process applies one result file and moves it out of the inbox.
func (w *Watcher) Process(ctx context.Context, path string) Outcome {
	v, _, _ := w.group.Do(path, func() (any, error) {
		return w.process(ctx, path), nil
	})
	return v.(Outcome)
}

func (w *Watcher) process(ctx context.Context, path string) Outcome {
	out := Outcome{File: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// handled by an earlier event
			return out
		}
		out.Err = fmt.Errorf("read %s: %w", filepath.Base(path), err)
		return out
	}

	sub, err := decode(path, data)
	if err == nil {
		out.StepID = sub.StepID
		err = w.complete(ctx, sub.StepID, sub.Result)
	}
	if err != nil {
		out.Err = err
		out.MovedTo = w.move(path, RejectedDir)
		w.writeReason(out.MovedTo, err)
		w.log(logging.LevelWarn, "result rejected file=%s step=%s error=%v", filepath.Base(path), out.StepID, err)
		w.publish(events.EventResultRejected, map[string]any{
			"file": filepath.Base(path), "step_id": out.StepID, "error": err.Error(),
		})
		return out
	}

	out.Applied = true
	out.MovedTo = w.move(path, ProcessedDir)
	w.log(logging.LevelInfo, "result applied file=%s step=%s", filepath.Base(path), sub.StepID)
	w.publish(events.EventResultApplied, map[string]any{"file": filepath.Base(path), "step_id": sub.StepID})

	if w.next != nil {
		resp, err := w.next(ctx)
		if err != nil {
			w.log(logging.LevelError, "next after step=%s error=%v", sub.StepID, err)
			return out
		}
		w.publish(events.EventInstructionIssued, map[string]any{"response": resp})
	}
	return out
}

func decode(path string, data []byte) (Submission, error) {
	var sub Submission
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &sub)
	} else {
		err = yamlv3.Unmarshal(data, &sub)
	}
	if err != nil {
		return sub, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if sub.StepID == "" {
		return sub, fmt.Errorf("decode %s: missing step_id", filepath.Base(path))
	}
	return sub, nil
}

// move renames path into sub and returns the new location, or "" on failure.
func (w *Watcher) move(path, sub string) string {
	dst := filepath.Join(w.dir, sub, w.now().UTC().Format("20060102T150405.000000000")+"-"+filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		w.log(logging.LevelError, "move file=%s to=%s error=%v", path, sub, err)
		return ""
	}
	return dst
}

func (w *Watcher) writeReason(moved string, reason error) {
	if moved == "" {
		return
	}
	if err := os.WriteFile(moved+".error", []byte(reason.Error()+"\n"), 0644); err != nil {
		w.log(logging.LevelWarn, "write rejection reason file=%s error=%v", moved, err)
	}
}

func (w *Watcher) publish(t events.EventType, data map[string]any) {
	if w.bus != nil {
		w.bus.Publish(t, data)
	}
}

func (w *Watcher) log(level logging.Level, format string, args ...any) {
	w.logger.Log(level, "inbox", format, args...)
}

// isResultFile accepts .json, .yaml and .yml files that are not hidden.
func isResultFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
