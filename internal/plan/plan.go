// Package plan loads and validates plan documents.
package plan

import (
	"errors"
	"fmt"
	"os"

	"github.com/msageha/baton/internal/graph"
	"github.com/msageha/baton/internal/model"
	yamlutil "github.com/msageha/baton/internal/yaml"
)

// Load reads, decodes and validates the plan at path. A returned
// *ValidationErrors lists every problem found.
func Load(path string) (*model.PlanDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	doc, err := Parse(content)
	var verrs *ValidationErrors
	if errors.As(err, &verrs) {
		verrs.Source = path
	}
	return doc, err
}

func Parse(content []byte) (*model.PlanDocument, error) {
	var doc model.PlanDocument
	if err := yamlutil.Decode(content, yamlutil.FileTypePlan, &doc); err != nil {
		return nil, err
	}
	if errs := Validate(&doc); errs != nil {
		return nil, errs
	}
	return &doc, nil
}

var validTypes = map[model.ItemType]bool{
	model.ItemTypeWork:         true,
	model.ItemTypeVerification: true,
}

var validRisks = map[model.RiskTier]bool{
	"":               true,
	model.RiskLow:    true,
	model.RiskMedium: true,
	model.RiskHigh:   true,
}

// Validate checks field values, id uniqueness, dependency references and
// acyclicity of the artifact graph. It returns nil when the plan is valid.
func Validate(doc *model.PlanDocument) *ValidationErrors {
	errs := &ValidationErrors{}

	switch doc.Mode {
	case "", model.ModeFull, model.ModeReduced:
	default:
		errs.Addf("mode", "must be %q or %q, got %q", model.ModeFull, model.ModeReduced, doc.Mode)
	}
	switch doc.CommitStrategy {
	case "", model.CommitPerItem, model.CommitSquash, model.CommitNone:
	default:
		errs.Addf("commit_strategy", "unknown strategy %q", doc.CommitStrategy)
	}

	if len(doc.Items) == 0 {
		errs.Add("items", "at least one item is required")
		return errs
	}

	names := make([]string, 0, len(doc.Items))
	seen := make(map[string]bool, len(doc.Items))
	for i, item := range doc.Items {
		prefix := fmt.Sprintf("items[%d]", i)
		validateItemFields(item, prefix, errs)
		if item.ID == "" {
			continue
		}
		if seen[item.ID] {
			errs.Addf(prefix+".id", "duplicate id %q", item.ID)
			continue
		}
		seen[item.ID] = true
		names = append(names, item.ID)
	}

	for i, d := range doc.Dependencies {
		if !seen[d.ItemID] {
			errs.Addf(fmt.Sprintf("dependencies[%d].item_id", i), "unknown item %q", d.ItemID)
		}
	}

	if !errs.HasErrors() {
		if _, err := graph.ValidateDAG(names, graph.ItemDependencies(names, doc.Dependencies)); err != nil {
			errs.Add("dependencies", err.Error())
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateItemFields(item model.WorkItem, prefix string, errs *ValidationErrors) {
	switch {
	case item.ID == "":
		errs.Add(prefix+".id", "required")
	case item.ID == model.FinalizeItemID:
		errs.Addf(prefix+".id", "%q is reserved", model.FinalizeItemID)
	case !model.ValidItemID(item.ID):
		errs.Addf(prefix+".id", "invalid id %q (allowed: letters, digits, '-' and '_')", item.ID)
	}
	if item.Title == "" {
		errs.Add(prefix+".title", "required")
	}
	if !validTypes[item.Type] {
		errs.Addf(prefix+".type", "must be %q or %q, got %q", model.ItemTypeWork, model.ItemTypeVerification, item.Type)
	}
	if !validRisks[item.Risk] {
		errs.Addf(prefix+".risk", "must be low, medium or high, got %q", item.Risk)
	}
}

// Snapshot copies the parts of doc the engine keeps in session state.
func Snapshot(doc *model.PlanDocument) model.PlanSnapshot {
	items := make([]model.WorkItem, len(doc.Items))
	copy(items, doc.Items)
	deps := make([]model.DependencyDeclaration, len(doc.Dependencies))
	copy(deps, doc.Dependencies)
	return model.PlanSnapshot{Name: doc.Name, Items: items, Dependencies: deps}
}
