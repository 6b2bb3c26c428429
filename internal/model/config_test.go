package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.Equal(t, ModeFull, cfg.Engine.Mode)
	assert.Equal(t, CommitPerItem, cfg.Engine.CommitStrategy)
	assert.Equal(t, "plan.yaml", cfg.Engine.PlanPath)
	assert.Equal(t, "recipe.toml", cfg.Engine.RecipePath)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 300, cfg.Watcher.DebounceMs)
	assert.Equal(t, 5, cfg.Lock.TimeoutSec)
}

func TestConfigWithDefaults_KeepsExplicitValues(t *testing.T) {
	src := `
engine:
  mode: reduced
  commit_strategy: squash
logging:
  level: debug
triage:
  destructive_patterns:
    - name: billing
      regex: "billing|invoice"
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(src), &cfg))
	cfg = cfg.WithDefaults()

	assert.Equal(t, ModeReduced, cfg.Engine.Mode)
	assert.Equal(t, CommitSquash, cfg.Engine.CommitStrategy)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.Len(t, cfg.Triage.DestructivePatterns, 1)
	assert.Equal(t, "billing", cfg.Triage.DestructivePatterns[0].Name)
}

func TestSessionStateYAMLRoundTrip(t *testing.T) {
	st := NewSessionState("ses_test", "2026-01-01T00:00:00Z")
	st.Engine.Todos["A"] = &ItemRuntimeState{Status: ItemVerifyDispatched, Retries: 1}
	st.PendingAction = &PendingAction{Block: "execute", Action: "A.verify", ItemID: "A", Phase: PhaseVerify, Instruction: "check it"}
	st.RecordStep("A.worker", StepComplete, Result{"summary": "done"}, "2026-01-01T00:01:00Z")

	data, err := yaml.Marshal(st)
	require.NoError(t, err)

	var back SessionState
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, SessionFileType, back.FileType)
	assert.Equal(t, ItemVerifyDispatched, back.Engine.Todos["A"].Status)
	assert.Equal(t, "A.verify", back.PendingAction.Action)
	assert.Equal(t, "done", back.Steps["A.worker"].Result["summary"])
}

func TestResultDecode_VerifyPayload(t *testing.T) {
	raw := Result{
		"status":              "FAILED",
		"criteria":            []any{map[string]any{"id": "c1", "pass": false}, map[string]any{"pass": true}, map[string]any{"pass": false}},
		"mustNotDoViolations": []any{},
	}
	var vr VerifyResult
	require.NoError(t, raw.Decode(&vr))
	assert.Equal(t, "FAILED", vr.Status)
	assert.Equal(t, []string{"c1", "criteria[2]"}, vr.FailedCriteria())
}

func TestResultDecode_StringList(t *testing.T) {
	var single WrapupResult
	require.NoError(t, Result{"learnings": "one lesson"}.Decode(&single))
	assert.Equal(t, StringList{"one lesson"}, single.Learnings)

	var many WrapupResult
	require.NoError(t, Result{"issues": []any{"a", "b"}}.Decode(&many))
	assert.Equal(t, StringList{"a", "b"}, many.Issues)
}
