package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/baton/internal/model"
)

func TestScopeChecker_Defaults(t *testing.T) {
	c := DefaultScopeChecker()

	hits := map[string]string{
		"Run the schema migration":              "database-migration",
		"ALTER TABLE users ADD COLUMN x":        "database-migration",
		"introduce a breaking API change":       "breaking-api-change",
		"rework the Authentication middleware":  "auth-change",
		"relax CORS for the dashboard":          "security-config",
		"update the CI/CD pipeline definitions": "ci-cd-pipeline",
	}
	for text, want := range hits {
		name, ok := c.Match(text)
		assert.True(t, ok, text)
		assert.Equal(t, want, name, text)
	}

	for _, text := range []string{"add a string helper", "rename local variable", "author credits in README"} {
		_, ok := c.Match(text)
		assert.False(t, ok, text)
	}
}

func TestScopeChecker_CustomPatterns(t *testing.T) {
	c, err := NewScopeChecker([]model.PatternConfig{{Name: "billing", Regex: `invoice`}})
	require.NoError(t, err)

	name, ok := c.CheckAdaptation(&model.Adaptation{Reason: "x", NewTodo: &model.NewTodo{Title: "Regenerate INVOICES"}})
	assert.True(t, ok)
	assert.Equal(t, "billing", name)

	_, ok = c.Match("schema migration")
	assert.False(t, ok, "custom list replaces the defaults")

	_, ok = c.CheckAdaptation(nil)
	assert.False(t, ok)
}

func TestScopeChecker_BadRegex(t *testing.T) {
	_, err := NewScopeChecker([]model.PatternConfig{{Name: "broken", Regex: `(`}})
	assert.Error(t, err)
}

func TestPolicy_UsesCustomScope(t *testing.T) {
	c, err := NewScopeChecker([]model.PatternConfig{{Name: "billing", Regex: `invoice`}})
	require.NoError(t, err)
	p := NewPolicy(c)

	vr := &model.VerifyResult{Status: "failed", SuggestedAdaptation: &model.Adaptation{Reason: "fix invoice totals"}}
	assert.Equal(t, Halt, p.Triage(vr, model.ItemTypeWork, nil, 0).Disposition)

	vr.SuggestedAdaptation.Reason = "database migration needed"
	assert.Equal(t, Adapt, p.Triage(vr, model.ItemTypeWork, nil, 0).Disposition)
}
