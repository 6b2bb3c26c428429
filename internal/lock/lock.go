// Package lock serializes access to a session across goroutines and
// processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrTimeout is returned when the session lock could not be taken in time.
var ErrTimeout = errors.New("timeout waiting for session lock")

const retryDelay = 100 * time.Millisecond

// MutexMap hands out one mutex per key.
type MutexMap struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func NewMutexMap() *MutexMap {
	return &MutexMap{
		mutexes: make(map[string]*sync.Mutex),
	}
}

func (m *MutexMap) Lock(key string) {
	m.getMutex(key).Lock()
}

func (m *MutexMap) Unlock(key string) {
	m.getMutex(key).Unlock()
}

func (m *MutexMap) getMutex(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mu, ok := m.mutexes[key]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	m.mutexes[key] = mu
	return mu
}

// Session is an advisory file lock guarding one session's state files.
type Session struct {
	path string
	fl   *flock.Flock
}

func NewSession(path string) *Session {
	return &Session{path: path, fl: flock.New(path)}
}

func (s *Session) Path() string {
	return s.path
}

// Lock waits up to timeout for the exclusive lock.
func (s *Session) Lock(ctx context.Context, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	locked, err := s.fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrTimeout, s.path)
		}
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrTimeout, s.path)
	}
	return nil
}

func (s *Session) Unlock() error {
	if err := s.fl.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// WithLock runs fn while holding the session lock.
func (s *Session) WithLock(ctx context.Context, timeout time.Duration, fn func() error) error {
	if err := s.Lock(ctx, timeout); err != nil {
		return err
	}
	defer func() { _ = s.Unlock() }()
	return fn()
}
