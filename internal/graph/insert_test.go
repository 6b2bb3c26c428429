package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/baton/internal/model"
)

func TestInsertDynamicTodo_ChainsAfterParent(t *testing.T) {
	g, err := Build(items("A"), nil, model.ModeFull)
	require.NoError(t, err)

	ids, err := InsertDynamicTodo(g, "A", model.WorkItem{ID: "A-fix1", Title: "fix"}, model.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-fix1.worker", "A-fix1.verify", "A-fix1.wrapup", "A-fix1.commit"}, ids)
	assert.Equal(t, []string{"A.commit"}, blockers(t, g, "A-fix1.worker"))
	assert.ElementsMatch(t, []string{"A.commit", "A-fix1.commit"}, blockers(t, g, "finalize.residual-commit"))
	assert.Equal(t, 1, g.DynamicChildren("A"))
}

func TestInsertDynamicTodo_FourthInsertFails(t *testing.T) {
	g, err := Build(items("A", "B"), nil, model.ModeReduced)
	require.NoError(t, err)

	for i := 1; i <= model.MaxDynamicChildren; i++ {
		_, err := InsertDynamicTodo(g, "A", model.WorkItem{ID: fmt.Sprintf("A-fix%d", i), Title: "fix"}, model.ModeReduced)
		require.NoError(t, err)
	}
	before := g.Len()

	_, err = InsertDynamicTodo(g, "A", model.WorkItem{ID: "A-fix4", Title: "fix"}, model.ModeReduced)
	assert.ErrorIs(t, err, ErrDynamicLimit)
	assert.Equal(t, before, g.Len(), "failed insert must not add nodes")

	// the limit is per parent
	_, err = InsertDynamicTodo(g, "B", model.WorkItem{ID: "B-fix1", Title: "fix"}, model.ModeReduced)
	assert.NoError(t, err)
}

func TestInsertDynamicTodo_Errors(t *testing.T) {
	g, err := Build(items("A"), nil, model.ModeFull)
	require.NoError(t, err)

	_, err = InsertDynamicTodo(g, "ghost", model.WorkItem{ID: "x"}, model.ModeFull)
	assert.ErrorIs(t, err, ErrUnknownNode)

	_, err = InsertDynamicTodo(g, "A", model.WorkItem{ID: "A"}, model.ModeFull)
	assert.ErrorIs(t, err, ErrDuplicateItem)

	_, err = InsertDynamicTodo(g, "A", model.WorkItem{ID: "bad.id"}, model.ModeFull)
	assert.Error(t, err)

	_, err = InsertDynamicTodo(g, "A", model.WorkItem{ID: "x"}, model.Mode("odd"))
	assert.ErrorIs(t, err, ErrInvalidMode)
}
