package model

import (
	"encoding/json"
	"fmt"
)

// Result is the raw payload an actor reports for a step.
type Result map[string]any

// Decode converts the loosely typed payload into a phase-specific struct.
func (r Result) Decode(out any) error {
	if r == nil {
		r = Result{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// StringList accepts either a JSON string or a JSON array of strings.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*s = nil
		} else {
			*s = StringList{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*s = many
	return nil
}

type CriterionResult struct {
	ID       string `yaml:"id,omitempty" json:"id,omitempty"`
	Category string `yaml:"category,omitempty" json:"category,omitempty"`
	Pass     bool   `yaml:"pass" json:"pass"`
	Evidence string `yaml:"evidence,omitempty" json:"evidence,omitempty"`
}

type Violation struct {
	Rule     string `yaml:"rule,omitempty" json:"rule,omitempty"`
	Violated bool   `yaml:"violated" json:"violated"`
	Evidence string `yaml:"evidence,omitempty" json:"evidence,omitempty"`
}

type SideEffect struct {
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Severity    string `yaml:"severity,omitempty" json:"severity,omitempty"`
}

// NewTodo is the corrective item an actor proposes in an adaptation.
type NewTodo struct {
	ID    string   `yaml:"id,omitempty" json:"id,omitempty"`
	Title string   `yaml:"title" json:"title"`
	Type  ItemType `yaml:"type,omitempty" json:"type,omitempty"`
	Steps []string `yaml:"steps,omitempty" json:"steps,omitempty"`
}

type Adaptation struct {
	Reason  string   `yaml:"reason" json:"reason"`
	NewTodo *NewTodo `yaml:"new_todo,omitempty" json:"newTodo,omitempty"`
}

type VerifyResult struct {
	Status              string            `yaml:"status" json:"status"`
	Summary             string            `yaml:"summary,omitempty" json:"summary,omitempty"`
	Criteria            []CriterionResult `yaml:"criteria,omitempty" json:"criteria,omitempty"`
	MustNotDoViolations []Violation       `yaml:"must_not_do_violations,omitempty" json:"mustNotDoViolations,omitempty"`
	SideEffects         []SideEffect      `yaml:"side_effects,omitempty" json:"sideEffects,omitempty"`
	SuggestedAdaptation *Adaptation       `yaml:"suggested_adaptation,omitempty" json:"suggestedAdaptation,omitempty"`
}

// FailedCriteria returns the ids (or positional labels) of failing criteria.
func (v *VerifyResult) FailedCriteria() []string {
	if v == nil {
		return nil
	}
	var failed []string
	for i, c := range v.Criteria {
		if c.Pass {
			continue
		}
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("criteria[%d]", i)
		}
		failed = append(failed, id)
	}
	return failed
}

type WrapupResult struct {
	Outputs   map[string]string `json:"outputs,omitempty"`
	Learnings StringList        `json:"learnings,omitempty"`
	Issues    StringList        `json:"issues,omitempty"`
}

// ReviewResult is reported by the code-review and final-verify finalize phases.
type ReviewResult struct {
	Status  string     `yaml:"status" json:"status"`
	Summary string     `yaml:"summary,omitempty" json:"summary,omitempty"`
	Issues  StringList `yaml:"issues,omitempty" json:"issues,omitempty"`
}
