// Package triage decides what happens to an item after its verify phase.
//
// The decision is a total, deterministic function of the verify result, the
// item type and the item's runtime counters. Rules are evaluated in priority
// order and the first match wins: halt beats adapt, adapt beats retry, retry
// beats pass.
package triage

import (
	"strconv"
	"strings"

	"github.com/msageha/baton/internal/model"
)

type Disposition string

const (
	Pass  Disposition = "pass"
	Retry Disposition = "retry"
	Adapt Disposition = "adapt"
	Halt  Disposition = "halt"
)

const (
	ReasonVerified           = "verified"
	ReasonMustNotDo          = "critical must-not-do violation"
	ReasonEnvError           = "environment error detected"
	ReasonDestructive        = "destructive/out-of-scope adaptation"
	ReasonAdaptSuggested     = "adaptation suggested"
	ReasonAdaptLimit         = "adaptation limit reached"
	ReasonVerificationFailed = "verification criteria failed"
	ReasonCriteriaFailed     = "acceptance criteria failed"
	ReasonRetryExhausted     = "retry exhausted"
	ReasonAmbiguous          = "ambiguous failure"
	ReasonUnresolvable       = "unresolvable failure"
)

const envErrorMarker = "env_error"

// Result is the triage verdict. Details carries the evidence that led to it.
type Result struct {
	Disposition Disposition    `json:"disposition"`
	Reason      string         `json:"reason"`
	Details     map[string]any `json:"details,omitempty"`
}

// Policy evaluates verify results with a given scope checker.
type Policy struct {
	scope *ScopeChecker
}

func NewPolicy(scope *ScopeChecker) *Policy {
	if scope == nil {
		scope = DefaultScopeChecker()
	}
	return &Policy{scope: scope}
}

var defaultPolicy = NewPolicy(nil)

// Triage evaluates with the default scope patterns.
func Triage(vr *model.VerifyResult, itemType model.ItemType, state *model.ItemRuntimeState, adaptDepth int) Result {
	return defaultPolicy.Triage(vr, itemType, state, adaptDepth)
}

// Triage applies the rules in order. A nil verify result is treated as an
// ambiguous failure; a nil state as a fresh item.
func (p *Policy) Triage(vr *model.VerifyResult, itemType model.ItemType, state *model.ItemRuntimeState, adaptDepth int) Result {
	if state == nil {
		state = &model.ItemRuntimeState{}
	}
	if vr == nil {
		vr = &model.VerifyResult{}
	}

	violations := violatedRules(vr)
	envSignals := environmentSignals(vr)
	failed := vr.FailedCriteria()
	adaptation := vr.SuggestedAdaptation

	// 1. clean pass
	if isVerified(vr) && len(violations) == 0 && len(envSignals) == 0 && adaptation == nil && len(failed) == 0 {
		return Result{Disposition: Pass, Reason: ReasonVerified}
	}

	// 2. must-not-do
	if len(violations) > 0 {
		return Result{Disposition: Halt, Reason: ReasonMustNotDo, Details: map[string]any{"violations": violations}}
	}

	// 3. environment
	if len(envSignals) > 0 {
		return Result{Disposition: Halt, Reason: ReasonEnvError, Details: map[string]any{"side_effects": envSignals}}
	}

	// 4. suggested adaptation
	if adaptation != nil {
		if name, hit := p.scope.CheckAdaptation(adaptation); hit {
			return Result{Disposition: Halt, Reason: ReasonDestructive, Details: map[string]any{
				"pattern":           name,
				"adaptation_reason": adaptation.Reason,
			}}
		}
		if adaptAllowed(state, adaptDepth) {
			return Result{Disposition: Adapt, Reason: ReasonAdaptSuggested, Details: map[string]any{
				"adaptation_reason": adaptation.Reason,
			}}
		}
		return Result{Disposition: Halt, Reason: ReasonAdaptLimit, Details: limitDetails(state, adaptDepth)}
	}

	// 5. failed verification item
	if itemType == model.ItemTypeVerification && len(failed) > 0 {
		if adaptAllowed(state, adaptDepth) {
			return Result{Disposition: Adapt, Reason: ReasonVerificationFailed, Details: map[string]any{"failed_criteria": failed}}
		}
		details := limitDetails(state, adaptDepth)
		details["failed_criteria"] = failed
		return Result{Disposition: Halt, Reason: ReasonAdaptLimit, Details: details}
	}

	// 6. failed work item
	if itemType == model.ItemTypeWork && len(failed) > 0 {
		details := map[string]any{"failed_criteria": failed, "retries": state.Retries}
		if state.Retries < model.MaxRetries {
			return Result{Disposition: Retry, Reason: ReasonCriteriaFailed, Details: details}
		}
		return Result{Disposition: Halt, Reason: ReasonRetryExhausted, Details: details}
	}

	// 7. anything else on a work item is retryable up to the cap
	if itemType == model.ItemTypeWork && state.Retries < model.MaxRetries {
		return Result{Disposition: Retry, Reason: ReasonAmbiguous, Details: map[string]any{
			"status":  vr.Status,
			"retries": state.Retries,
		}}
	}

	// 8. safe default
	return Result{Disposition: Halt, Reason: ReasonUnresolvable, Details: map[string]any{
		"status":    vr.Status,
		"item_type": string(itemType),
		"retries":   state.Retries,
	}}
}

func isVerified(vr *model.VerifyResult) bool {
	return strings.EqualFold(strings.TrimSpace(vr.Status), "verified")
}

func violatedRules(vr *model.VerifyResult) []string {
	var out []string
	for i, v := range vr.MustNotDoViolations {
		if !v.Violated {
			continue
		}
		rule := v.Rule
		if rule == "" {
			rule = "mustNotDoViolations[" + strconv.Itoa(i) + "]"
		}
		out = append(out, rule)
	}
	return out
}

func environmentSignals(vr *model.VerifyResult) []string {
	var out []string
	for _, se := range vr.SideEffects {
		if strings.EqualFold(se.Severity, "critical") || strings.Contains(strings.ToLower(se.Description), envErrorMarker) {
			out = append(out, se.Description)
		}
	}
	return out
}

// adaptAllowed gates dynamic insertion: only plan-authored items adapt and
// each parent has a bounded number of children.
func adaptAllowed(state *model.ItemRuntimeState, depth int) bool {
	return depth < model.MaxAdaptDepth && state.DynamicChildren < model.MaxDynamicChildren
}

func limitDetails(state *model.ItemRuntimeState, depth int) map[string]any {
	return map[string]any{
		"depth":            depth,
		"dynamic_children": state.DynamicChildren,
	}
}
