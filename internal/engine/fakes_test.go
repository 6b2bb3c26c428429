package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/internal/prompt"
)

// memStore keeps the session as YAML bytes so every Load sees exactly what
// the last Save persisted.
type memStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func newMemStore(t *testing.T) *memStore {
	t.Helper()
	s := &memStore{}
	require.NoError(t, s.Save(context.Background(), model.NewSessionState("ses_test", "2026-01-01T00:00:00Z")))
	s.saves = 0
	return s
}

func (m *memStore) Load(context.Context) (*model.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s model.SessionState
	if err := yamlv3.Unmarshal(m.data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *memStore) Save(_ context.Context, s *model.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := yamlv3.Marshal(s)
	if err != nil {
		return err
	}
	m.data = data
	m.saves++
	return nil
}

type fakeContext struct {
	outputs   map[string]map[string]string
	learnings []string
	issues    []string
	audit     []string
	inits     int
}

func newFakeContext() *fakeContext {
	return &fakeContext{outputs: make(map[string]map[string]string)}
}

func (f *fakeContext) Init() error { f.inits++; return nil }

func (f *fakeContext) WriteOutput(itemID string, outputs map[string]string) error {
	if f.outputs[itemID] == nil {
		f.outputs[itemID] = make(map[string]string)
	}
	for k, v := range outputs {
		f.outputs[itemID][k] = v
	}
	return nil
}

func (f *fakeContext) AppendLearning(itemID, text string) error {
	f.learnings = append(f.learnings, itemID+": "+text)
	return nil
}

func (f *fakeContext) AppendIssue(itemID, text string) error {
	f.issues = append(f.issues, itemID+": "+text)
	return nil
}

func (f *fakeContext) AppendAudit(entry string) error {
	f.audit = append(f.audit, entry)
	return nil
}

func (f *fakeContext) ReadOutputs() (map[string]map[string]string, error) {
	return f.outputs, nil
}

type echoRenderer struct{}

func (echoRenderer) Render(req prompt.Request) (string, error) {
	return fmt.Sprintf("run %s", req.NodeID), nil
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	store  *memStore
	cstore *fakeContext
	engine *Engine
}

func newHarness(t *testing.T, renderer PromptRenderer) *harness {
	t.Helper()
	if renderer == nil {
		renderer = echoRenderer{}
	}
	store := newMemStore(t)
	cstore := newFakeContext()
	clock := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	e, err := New(store, cstore, renderer, WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	return &harness{t: t, ctx: context.Background(), store: store, cstore: cstore, engine: e}
}

func (h *harness) init(items []model.WorkItem, deps []model.DependencyDeclaration, mode model.Mode) {
	h.t.Helper()
	require.NoError(h.t, h.engine.Init(h.ctx, model.PlanSnapshot{Name: "test", Items: items, Dependencies: deps}, model.CommitPerItem, mode))
}

func (h *harness) session() *model.SessionState {
	h.t.Helper()
	s, err := h.store.Load(h.ctx)
	require.NoError(h.t, err)
	return s
}

func workItems(ids ...string) []model.WorkItem {
	out := make([]model.WorkItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.WorkItem{ID: id, Title: "item " + id, Type: model.ItemTypeWork})
	}
	return out
}

func goodResult(phase model.Phase) model.Result {
	switch phase {
	case model.PhaseVerify:
		return model.Result{"status": "verified", "criteria": []any{map[string]any{"id": "F1", "pass": true}}}
	case model.PhaseWrapup:
		return model.Result{"outputs": map[string]any{"done": "yes"}, "learnings": []any{"keep it small"}}
	case model.PhaseCodeReview:
		return model.Result{"status": "approved"}
	case model.PhaseFinalVerify:
		return model.Result{"status": "verified"}
	default:
		return model.Result{"summary": "ok"}
	}
}

// drive dispatches and completes until the engine reports done. results may
// override the payload for specific node ids; each override is used once.
func (h *harness) drive(results map[string]model.Result) ([]string, NextResponse) {
	h.t.Helper()
	var dispatched []string
	for i := 0; i < 200; i++ {
		resp, err := h.engine.Next(h.ctx)
		require.NoError(h.t, err)
		if resp.Done {
			return dispatched, resp
		}
		ins := resp.Instruction
		require.NotNil(h.t, ins)
		dispatched = append(dispatched, ins.NodeID)

		result, ok := results[ins.NodeID]
		if ok {
			delete(results, ins.NodeID)
		} else {
			result = goodResult(ins.Phase)
		}
		_, err = h.engine.Complete(h.ctx, ins.NodeID, result)
		require.NoError(h.t, err)
	}
	h.t.Fatalf("engine did not finish; dispatched %s", strings.Join(dispatched, ","))
	return nil, NextResponse{}
}

func indexOf(list []string, v string) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}

// step expects want to be dispatched next and completes it with result.
func (h *harness) step(want string, result model.Result) CompleteResponse {
	h.t.Helper()
	resp, err := h.engine.Next(h.ctx)
	require.NoError(h.t, err)
	require.NotNil(h.t, resp.Instruction, "expected %s, got %+v", want, resp)
	require.Equal(h.t, want, resp.Instruction.NodeID)
	out, err := h.engine.Complete(h.ctx, want, result)
	require.NoError(h.t, err)
	return out
}
