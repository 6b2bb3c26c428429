package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/baton/internal/events"
	"github.com/msageha/baton/internal/model"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (r *recorder) complete(_ context.Context, stepID string, result model.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, stepID)
	return r.fail[stepID]
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestProcessAppliesAndMoves(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ProcessedDir), 0755))
	rec := &recorder{}
	var nextCalls int
	w := New(dir, rec.complete, WithNext(func(context.Context) (any, error) {
		nextCalls++
		return map[string]any{"done": false}, nil
	}))

	path := writeFile(t, dir, "a.json", `{"step_id": "A.worker", "result": {"summary": "ok"}}`)
	out := w.Process(context.Background(), path)

	require.NoError(t, out.Err)
	assert.True(t, out.Applied)
	assert.Equal(t, "A.worker", out.StepID)
	assert.Equal(t, []string{"A.worker"}, rec.seen())
	assert.Equal(t, 1, nextCalls)
	assert.NoFileExists(t, path)
	assert.FileExists(t, out.MovedTo)
	assert.Equal(t, filepath.Join(dir, ProcessedDir), filepath.Dir(out.MovedTo))
}

func TestProcessYAMLResult(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ProcessedDir), 0755))
	var got model.Result
	w := New(dir, func(_ context.Context, stepID string, result model.Result) error {
		got = result
		return nil
	})

	path := writeFile(t, dir, "b.yaml", "step_id: A.verify\nresult:\n  status: verified\n  criteria:\n    - id: F1\n      pass: true\n")
	out := w.Process(context.Background(), path)
	require.NoError(t, out.Err)

	var vr model.VerifyResult
	require.NoError(t, got.Decode(&vr))
	assert.Equal(t, "verified", vr.Status)
	require.Len(t, vr.Criteria, 1)
}

func TestProcessRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "bad json", file: "bad.json", content: "{not json"},
		{name: "missing step", file: "nostep.json", content: `{"result": {}}`},
		{name: "completer error", file: "err.json", content: `{"step_id": "X.worker"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.MkdirAll(filepath.Join(dir, RejectedDir), 0755))
			bus := events.NewBus(10)
			rejected := make(chan events.Event, 1)
			bus.Subscribe(func(e events.Event) { rejected <- e }, events.EventResultRejected)

			rec := &recorder{fail: map[string]error{"X.worker": errors.New("not outstanding")}}
			w := New(dir, rec.complete, WithBus(bus))
			out := w.Process(context.Background(), writeFile(t, dir, tt.file, tt.content))

			assert.Error(t, out.Err)
			assert.False(t, out.Applied)
			assert.Equal(t, filepath.Join(dir, RejectedDir), filepath.Dir(out.MovedTo))
			assert.FileExists(t, out.MovedTo+".error")

			select {
			case e := <-rejected:
				assert.Equal(t, tt.file, e.Data["file"])
			case <-time.After(time.Second):
				t.Fatal("no rejection event")
			}
			bus.Close()
		})
	}
}

func TestProcessMissingFileIsNoop(t *testing.T) {
	rec := &recorder{}
	w := New(t.TempDir(), rec.complete)
	out := w.Process(context.Background(), "/nonexistent/x.json")
	assert.NoError(t, out.Err)
	assert.False(t, out.Applied)
	assert.Empty(t, rec.seen())
}

func TestScanProcessesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{ProcessedDir, RejectedDir} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0755))
	}
	writeFile(t, dir, "002.json", `{"step_id": "B"}`)
	writeFile(t, dir, "001.yml", `step_id: A`)
	writeFile(t, dir, ".tmp.json", `{"step_id": "hidden"}`)
	writeFile(t, dir, "notes.txt", `ignored`)

	rec := &recorder{}
	outs := New(dir, rec.complete).Scan(context.Background())
	assert.Len(t, outs, 2)
	assert.Equal(t, []string{"A", "B"}, rec.seen())
	assert.FileExists(t, filepath.Join(dir, ".tmp.json"))
}

func TestRunPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	bus := events.NewBus(10)
	defer bus.Close()
	issued := make(chan events.Event, 4)
	bus.Subscribe(func(e events.Event) { issued <- e }, events.EventInstructionIssued)

	w := New(dir, rec.complete,
		WithDebounce(20*time.Millisecond),
		WithBus(bus),
		WithNext(func(context.Context) (any, error) { return "next", nil }),
	)

	writeFile(t, dir, "early.json", `{"step_id": "early"}`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)

	writeFile(t, dir, "late.json", `{"step_id": "late"}`)
	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"early", "late"}, rec.seen())

	select {
	case e := <-issued:
		assert.Equal(t, "next", e.Data["response"])
	case <-time.After(time.Second):
		t.Fatal("no instruction event")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestIsResultFile(t *testing.T) {
	assert.True(t, isResultFile("/x/a.json"))
	assert.True(t, isResultFile("a.YAML"))
	assert.True(t, isResultFile("a.yml"))
	assert.False(t, isResultFile(".a.json"))
	assert.False(t, isResultFile("a.json.error"))
	assert.False(t, isResultFile("a.txt"))
}
