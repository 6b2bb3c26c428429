package prompt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/baton/internal/model"
)

type staticOutputs struct {
	data map[string]map[string]string
	err  error
}

func (s staticOutputs) ReadOutputs() (map[string]map[string]string, error) {
	return s.data, s.err
}

func TestSubstitute(t *testing.T) {
	outputs := map[string]map[string]string{"schema": {"package": "internal/settings"}}

	assert.Equal(t, "use internal/settings", Substitute("use ${schema.package}", outputs))
	assert.Equal(t, "keep ${schema.missing} and ${other.key}", Substitute("keep ${schema.missing} and ${other.key}", outputs))
	assert.Equal(t, "${schema.package}", Substitute("${schema.package}", nil))
}

func workItem() *model.WorkItem {
	return &model.WorkItem{
		ID:        "handler",
		Title:     "Expose settings",
		Type:      model.ItemTypeWork,
		Steps:     []string{"Add GET /settings", "Write a test"},
		Inputs:    map[string]string{"model": "${schema.package}", "a_literal": "plain"},
		MustNotDo: []string{"touch the database"},
		AcceptanceCriteria: model.AcceptanceCriteria{
			Functional: []string{"returns JSON"},
		},
		Risk: model.RiskMedium,
	}
}

func TestRender_Worker(t *testing.T) {
	r, err := New(staticOutputs{data: map[string]map[string]string{"schema": {"package": "internal/settings"}}})
	require.NoError(t, err)

	text, err := r.Render(Request{
		PlanName: "demo",
		Mode:     model.ModeFull,
		NodeID:   "handler.worker",
		ItemID:   "handler",
		Phase:    model.PhaseWorker,
		Item:     workItem(),
		State: &model.ItemRuntimeState{FixContext: &model.FixContext{
			Attempt: 1, Reason: "acceptance criteria failed", FailedCriteria: []string{"F1"},
		}},
	})
	require.NoError(t, err)

	assert.Contains(t, text, "# Work item handler: Expose settings")
	assert.Contains(t, text, "1. Add GET /settings")
	assert.Contains(t, text, "2. Write a test")
	assert.Contains(t, text, "- a_literal: plain\n- model: internal/settings")
	assert.Contains(t, text, "Failed criteria: F1")
	assert.Contains(t, text, "- touch the database")
	assert.Contains(t, text, "## Functional criteria")
	assert.Contains(t, text, "baton complete handler.worker")
}

func TestRender_Deterministic(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)
	req := Request{NodeID: "handler.verify", ItemID: "handler", Phase: model.PhaseVerify, Item: workItem(),
		State: &model.ItemRuntimeState{WorkerResult: model.Result{"summary": "done", "filesChanged": []any{"a.go"}}}}

	first, err := r.Render(req)
	require.NoError(t, err)
	second, err := r.Render(req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "- summary: done")
}

func TestRender_CommitStrategies(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)

	base := Request{NodeID: "a.commit", ItemID: "a", Phase: model.PhaseCommit, Item: &model.WorkItem{ID: "a", Title: "A"}}

	base.CommitStrategy = model.CommitPerItem
	text, err := r.Render(base)
	require.NoError(t, err)
	assert.Contains(t, text, "Commit the changes for this item only")

	base.CommitStrategy = model.CommitSquash
	text, err = r.Render(base)
	require.NoError(t, err)
	assert.Contains(t, text, "do not commit; the residual commit squashes them")

	base.CommitStrategy = model.CommitNone
	text, err = r.Render(base)
	require.NoError(t, err)
	assert.Contains(t, text, "Do not commit.")
}

func TestRender_FinalizePhases(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)

	items := []ItemSummary{
		{ID: "A", Title: "first", Status: model.ItemDone},
		{ID: "B", Title: "second", Status: model.ItemFailed, Retries: 3, HaltReason: "retry exhausted"},
	}
	for _, phase := range []model.Phase{
		model.PhaseResidualCommit, model.PhaseCodeReview, model.PhaseFinalVerify,
		model.PhaseStateComplete, model.PhaseReport,
	} {
		text, err := r.Render(Request{
			PlanName: "demo",
			NodeID:   "finalize." + string(phase),
			ItemID:   model.FinalizeItemID,
			Phase:    phase,
			Finalize: &model.FinalizeState{CodeReviewResult: &model.ReviewResult{Status: "approved"}},
			Items:    items,
		})
		require.NoError(t, err, phase)
		assert.Contains(t, text, "- B [failed] second (retries 3): retry exhausted", phase)
	}
}

func TestRender_Errors(t *testing.T) {
	r, err := New(staticOutputs{err: errors.New("disk gone")})
	require.NoError(t, err)

	_, err = r.Render(Request{Phase: model.Phase("deploy")})
	assert.Error(t, err)

	_, err = r.Render(Request{NodeID: "handler.worker", Phase: model.PhaseWorker, Item: workItem()})
	assert.ErrorContains(t, err, "disk gone")
}
