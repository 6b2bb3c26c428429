package recipe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/internal/plan"
)

func TestDefaultRecipe(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "default", r.Name)
	require.Len(t, r.Steps, 4)
	assert.Equal(t, model.StepKindAuto, r.Steps[0].Kind)
	assert.Equal(t, "load-plan", r.Steps[0].Action)
	assert.Equal(t, model.StepKindPrompt, r.Steps[1].Kind)
	assert.NotEmpty(t, r.Steps[1].Instruction)
	assert.Equal(t, model.StepKindScheduler, r.Steps[2].Kind)
	assert.Equal(t, 2, Index(r, "execute"))
	assert.Equal(t, -1, Index(r, "missing"))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
recipe = "tiny"

[[steps]]
id = "run"
kind = "scheduler"
`), 0644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tiny", r.Name)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(`
recipe = "x"
[[steps]]
id = "run"
kind = "scheduler"
instructions = "typo"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps.instructions")
}

func TestValidateCollectsErrors(t *testing.T) {
	tests := []struct {
		name  string
		toml  string
		paths []string
	}{
		{
			name:  "empty",
			toml:  `description = "nothing"`,
			paths: []string{"recipe", "steps"},
		},
		{
			name: "bad steps",
			toml: `
recipe = "x"
[[steps]]
id = "a"
kind = "auto"
[[steps]]
id = "a"
kind = "prompt"
[[steps]]
id = "s1"
kind = "scheduler"
[[steps]]
id = "s2"
kind = "scheduler"
[[steps]]
kind = "magic"
[[steps]]
id = "A.worker"
kind = "auto"
action = "checkpoint"
`,
			paths: []string{
				"steps[0].action",
				"steps[1].id",
				"steps[1].instruction",
				"steps[3].kind",
				"steps[4].id",
				"steps[4].kind",
				"steps[5].id",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.toml))
			var verrs *plan.ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)
			got := make([]string, 0, len(verrs.Errors))
			for _, e := range verrs.Errors {
				got = append(got, e.FieldPath)
			}
			assert.ElementsMatch(t, tt.paths, got)
		})
	}
}
