// Package prompt renders the instruction text handed to the actor for each
// phase. Templates are embedded from templates/phases.
package prompt

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/templates"
)

// Request is everything a phase template may reference.
type Request struct {
	PlanName       string
	Mode           model.Mode
	CommitStrategy model.CommitStrategy
	NodeID         string
	ItemID         string
	Phase          model.Phase
	// Item and State are nil for finalize phases.
	Item     *model.WorkItem
	State    *model.ItemRuntimeState
	Finalize *model.FinalizeState
	Items    []ItemSummary
}

type ItemSummary struct {
	ID         string
	Title      string
	Status     model.ItemStatus
	Retries    int
	HaltReason string
}

// OutputReader supplies recorded item outputs for input substitution.
type OutputReader interface {
	ReadOutputs() (map[string]map[string]string, error)
}

type Input struct {
	Key   string
	Value string
}

type view struct {
	Request
	Inputs []Input
}

type Renderer struct {
	tmpl    *template.Template
	outputs OutputReader
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}

// New parses the embedded phase templates. outputs may be nil, in which case
// placeholders are left as written.
func New(outputs OutputReader) (*Renderer, error) {
	tmpl, err := template.New("phases").Funcs(funcs).Option("missingkey=zero").ParseFS(templates.FS, "phases/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse phase templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, outputs: outputs}, nil
}

// Render produces the instruction text for one phase node.
func (r *Renderer) Render(req Request) (string, error) {
	name := string(req.Phase) + ".tmpl"
	if r.tmpl.Lookup(name) == nil {
		return "", fmt.Errorf("no template for phase %q", req.Phase)
	}

	v := view{Request: req}
	if req.Item != nil && len(req.Item.Inputs) > 0 {
		outputs, err := r.readOutputs()
		if err != nil {
			return "", err
		}
		v.Inputs = resolveInputs(req.Item.Inputs, outputs)
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, v); err != nil {
		return "", fmt.Errorf("render %s: %w", req.NodeID, err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

func (r *Renderer) readOutputs() (map[string]map[string]string, error) {
	if r.outputs == nil {
		return nil, nil
	}
	out, err := r.outputs.ReadOutputs()
	if err != nil {
		return nil, fmt.Errorf("read outputs: %w", err)
	}
	return out, nil
}

func resolveInputs(inputs map[string]string, outputs map[string]map[string]string) []Input {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Input, 0, len(keys))
	for _, k := range keys {
		out = append(out, Input{Key: k, Value: Substitute(inputs[k], outputs)})
	}
	return out
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z0-9_-]+)\.([A-Za-z0-9_-]+)\}`)

// Substitute replaces ${ITEM.KEY} with the recorded output. Unknown
// placeholders are kept verbatim.
func Substitute(s string, outputs map[string]map[string]string) string {
	if len(outputs) == 0 {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		if v, ok := outputs[parts[1]][parts[2]]; ok {
			return v
		}
		return m
	})
}
