// Package recipe loads the TOML recipes that drive the sequencer.
package recipe

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/internal/plan"
	"github.com/msageha/baton/templates"
)

// DefaultFile is the embedded recipe written by "baton init".
const DefaultFile = "recipe.toml"

// Load reads and validates the recipe at path.
func Load(path string) (*model.Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	r, err := Parse(data)
	var verrs *plan.ValidationErrors
	if errors.As(err, &verrs) {
		verrs.Source = path
		return nil, verrs
	}
	if err != nil {
		return nil, fmt.Errorf("recipe %s: %w", path, err)
	}
	return r, nil
}

// Default returns the embedded default recipe.
func Default() (*model.Recipe, error) {
	data, err := templates.FS.ReadFile(DefaultFile)
	if err != nil {
		return nil, fmt.Errorf("default recipe not found: %w", err)
	}
	return Parse(data)
}

// Parse decodes a recipe. Unknown keys are rejected so typos in step fields
// do not silently change the step kind.
func Parse(data []byte) (*model.Recipe, error) {
	var r model.Recipe
	md, err := toml.Decode(string(data), &r)
	if err != nil {
		return nil, fmt.Errorf("parsing recipe: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown recipe keys: %s", strings.Join(keys, ", "))
	}
	for i := range r.Steps {
		r.Steps[i].Instruction = strings.TrimSpace(r.Steps[i].Instruction)
	}
	if errs := Validate(&r); errs != nil {
		return nil, errs
	}
	return &r, nil
}

// Validate collects every problem in r.
func Validate(r *model.Recipe) *plan.ValidationErrors {
	errs := &plan.ValidationErrors{}
	if r.Name == "" {
		errs.Add("recipe", "required")
	}
	if len(r.Steps) == 0 {
		errs.Add("steps", "at least one step is required")
	}

	seen := make(map[string]bool, len(r.Steps))
	schedulers := 0
	for i, step := range r.Steps {
		prefix := fmt.Sprintf("steps[%d]", i)
		switch {
		case step.ID == "":
			errs.Add(prefix+".id", "required")
		case seen[step.ID]:
			errs.Addf(prefix+".id", "duplicate id %q", step.ID)
		case strings.Contains(step.ID, "."):
			// dotted ids are graph node ids
			errs.Addf(prefix+".id", "id %q must not contain '.'", step.ID)
		}
		seen[step.ID] = true

		switch step.Kind {
		case model.StepKindAuto:
			if step.Action == "" {
				errs.Add(prefix+".action", "auto steps need an action")
			}
		case model.StepKindPrompt:
			if step.Instruction == "" {
				errs.Add(prefix+".instruction", "prompt steps need an instruction")
			}
		case model.StepKindScheduler:
			schedulers++
			if schedulers > 1 {
				errs.Add(prefix+".kind", "at most one scheduler step is allowed")
			}
		default:
			errs.Addf(prefix+".kind", "must be auto, prompt or scheduler, got %q", step.Kind)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Index returns the position of stepID in r, or -1.
func Index(r *model.Recipe, stepID string) int {
	for i, s := range r.Steps {
		if s.ID == stepID {
			return i
		}
	}
	return -1
}
