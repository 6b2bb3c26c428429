package model

// ItemType distinguishes ordinary work from verification-only items. Triage
// treats them differently on failed criteria.
type ItemType string

const (
	ItemTypeWork         ItemType = "work"
	ItemTypeVerification ItemType = "verification"
)

type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

type Mode string

const (
	ModeFull    Mode = "full"
	ModeReduced Mode = "reduced"
)

type CommitStrategy string

const (
	CommitPerItem CommitStrategy = "per-item"
	CommitSquash  CommitStrategy = "squash"
	CommitNone    CommitStrategy = "none"
)

// Phase names one stage of an item chain or of the finalize chain.
type Phase string

const (
	PhaseWorker Phase = "worker"
	PhaseVerify Phase = "verify"
	PhaseWrapup Phase = "wrapup"
	PhaseCommit Phase = "commit"

	PhaseResidualCommit Phase = "residual-commit"
	PhaseCodeReview     Phase = "code-review"
	PhaseFinalVerify    Phase = "final-verify"
	PhaseStateComplete  Phase = "state-complete"
	PhaseReport         Phase = "report"
)

// FinalizeItemID is the reserved item id that owns the finalize chain.
const FinalizeItemID = "finalize"

// Scheduling limits. These are part of the engine contract.
const (
	MaxRetries         = 3
	MaxDynamicChildren = 3
	MaxAdaptDepth      = 1
)

type AcceptanceCriteria struct {
	Functional []string `yaml:"functional,omitempty" json:"functional,omitempty"`
	Static     []string `yaml:"static,omitempty" json:"static,omitempty"`
	Runtime    []string `yaml:"runtime,omitempty" json:"runtime,omitempty"`
	Cleanup    []string `yaml:"cleanup,omitempty" json:"cleanup,omitempty"`
}

func (a AcceptanceCriteria) Count() int {
	return len(a.Functional) + len(a.Static) + len(a.Runtime) + len(a.Cleanup)
}

// WorkItem is one unit of the plan. It is read-only to the scheduler.
type WorkItem struct {
	ID                 string             `yaml:"id" json:"id"`
	Title              string             `yaml:"title" json:"title"`
	Type               ItemType           `yaml:"type" json:"type"`
	Steps              []string           `yaml:"steps,omitempty" json:"steps,omitempty"`
	Inputs             map[string]string  `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs            []string           `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	MustNotDo          []string           `yaml:"must_not_do,omitempty" json:"mustNotDo,omitempty"`
	AcceptanceCriteria AcceptanceCriteria `yaml:"acceptance_criteria" json:"acceptanceCriteria"`
	Risk               RiskTier           `yaml:"risk,omitempty" json:"risk,omitempty"`
}

// DependencyDeclaration names the artifacts an item needs and provides.
type DependencyDeclaration struct {
	ItemID   string   `yaml:"item_id" json:"itemId"`
	Requires []string `yaml:"requires,omitempty" json:"requires,omitempty"`
	Produces []string `yaml:"produces,omitempty" json:"produces,omitempty"`
}

// PlanDocument is the on-disk plan file.
type PlanDocument struct {
	SchemaVersion  int                     `yaml:"schema_version"`
	FileType       string                  `yaml:"file_type"`
	Name           string                  `yaml:"name"`
	CommitStrategy CommitStrategy          `yaml:"commit_strategy,omitempty"`
	Mode           Mode                    `yaml:"mode,omitempty"`
	Items          []WorkItem              `yaml:"items"`
	Dependencies   []DependencyDeclaration `yaml:"dependencies,omitempty"`
}
