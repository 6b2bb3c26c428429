package model

const (
	SessionSchemaVersion = 1
	SessionFileType      = "session_state"
)

// SessionState is the whole persisted record of one run. It is loaded and
// saved as a unit.
type SessionState struct {
	SchemaVersion int                    `yaml:"schema_version"`
	FileType      string                 `yaml:"file_type"`
	SessionID     string                 `yaml:"session_id"`
	Recipe        Recipe                 `yaml:"recipe"`
	Settings      SessionSettings        `yaml:"settings,omitempty"`
	BlockIndex    int                    `yaml:"block_index"`
	PendingAction *PendingAction         `yaml:"pending_action"`
	Steps         map[string]*StepRecord `yaml:"steps"`
	Engine        EngineState            `yaml:"engine"`
	Events        []Event                `yaml:"events"`
	CreatedAt     string                 `yaml:"created_at"`
	UpdatedAt     string                 `yaml:"updated_at"`
}

// SessionSettings are start options read by later steps.
type SessionSettings struct {
	PlanPath string `yaml:"plan_path,omitempty"`
	Mode     Mode   `yaml:"mode,omitempty"`
}

// PendingAction is the single outstanding instruction of a session.
type PendingAction struct {
	Block        string `yaml:"block"`
	Action       string `yaml:"action"`
	ItemID       string `yaml:"item_id,omitempty"`
	Phase        Phase  `yaml:"phase,omitempty"`
	Instruction  string `yaml:"instruction"`
	IssuedAt     string `yaml:"issued_at"`
	Acknowledged bool   `yaml:"acknowledged"`
}

type StepRecord struct {
	Status StepStatus `yaml:"status"`
	At     string     `yaml:"at"`
	Result Result     `yaml:"result,omitempty"`
}

type Event struct {
	Type string         `yaml:"type"`
	Data map[string]any `yaml:"data,omitempty"`
	At   string         `yaml:"at"`
}

// EngineState is the part of the session owned by the scheduler driver.
type EngineState struct {
	Mode           Mode                         `yaml:"mode"`
	CommitStrategy CommitStrategy               `yaml:"commit_strategy"`
	Initialized    bool                         `yaml:"initialized"`
	Plan           PlanSnapshot                 `yaml:"plan"`
	Todos          map[string]*ItemRuntimeState `yaml:"todos"`
	Finalize       FinalizeState                `yaml:"finalize"`
	Graph          SerializedGraph              `yaml:"graph"`
	DynamicTodos   []WorkItem                   `yaml:"dynamic_todos,omitempty"`
	HaltedReason   string                       `yaml:"halted_reason,omitempty"`
}

type PlanSnapshot struct {
	Name         string                  `yaml:"name"`
	Items        []WorkItem              `yaml:"items"`
	Dependencies []DependencyDeclaration `yaml:"dependencies,omitempty"`
}

// ItemRuntimeState is created for every declared item at init and for every
// dynamic item at insertion. It is never deleted.
type ItemRuntimeState struct {
	Status          ItemStatus    `yaml:"status"`
	Retries         int           `yaml:"retries"`
	DynamicChildren int           `yaml:"dynamic_children"`
	WorkerResult    Result        `yaml:"worker_result,omitempty"`
	VerifyResult    *VerifyResult `yaml:"verify_result,omitempty"`
	FixContext      *FixContext   `yaml:"fix_context,omitempty"`
	IsDynamic       bool          `yaml:"is_dynamic,omitempty"`
	ParentID        string        `yaml:"parent_id,omitempty"`
	Depth           int           `yaml:"depth,omitempty"`
	Adaptation      *Adaptation   `yaml:"adaptation,omitempty"`
	HaltReason      string        `yaml:"halt_reason,omitempty"`
}

// FixContext carries what went wrong into the next worker attempt.
type FixContext struct {
	Attempt        int      `yaml:"attempt"`
	Reason         string   `yaml:"reason"`
	FailedCriteria []string `yaml:"failed_criteria,omitempty"`
	Summary        string   `yaml:"summary,omitempty"`
}

type FinalizeState struct {
	Status            FinalizeStatus `yaml:"status"`
	CurrentStep       Phase          `yaml:"current_step,omitempty"`
	CodeReviewResult  *ReviewResult  `yaml:"code_review_result,omitempty"`
	FinalVerifyResult *ReviewResult  `yaml:"final_verify_result,omitempty"`
}

// SerializedGraph is the storage form of the dependency graph. Node order is
// the scheduler's iteration order.
type SerializedGraph struct {
	Nodes           []SerializedNode `yaml:"nodes"`
	DynamicChildren map[string]int   `yaml:"dynamic_children,omitempty"`
}

type SerializedNode struct {
	ID        string     `yaml:"id"`
	ItemID    string     `yaml:"item_id"`
	Phase     Phase      `yaml:"phase"`
	Status    NodeStatus `yaml:"status"`
	BlockedBy []string   `yaml:"blocked_by,omitempty"`
}

// StepKind selects how the sequencer treats a recipe step.
type StepKind string

const (
	StepKindAuto      StepKind = "auto"
	StepKindPrompt    StepKind = "prompt"
	StepKindScheduler StepKind = "scheduler"
)

type Recipe struct {
	Name        string       `yaml:"name" toml:"recipe"`
	Description string       `yaml:"description,omitempty" toml:"description"`
	Steps       []RecipeStep `yaml:"steps" toml:"steps"`
}

type RecipeStep struct {
	ID          string   `yaml:"id" toml:"id"`
	Kind        StepKind `yaml:"kind" toml:"kind"`
	Title       string   `yaml:"title,omitempty" toml:"title"`
	Action      string   `yaml:"action,omitempty" toml:"action"`
	Instruction string   `yaml:"instruction,omitempty" toml:"instruction"`
}

// NewSessionState returns an empty session with schema header and maps set.
func NewSessionState(sessionID, now string) *SessionState {
	return &SessionState{
		SchemaVersion: SessionSchemaVersion,
		FileType:      SessionFileType,
		SessionID:     sessionID,
		Steps:         make(map[string]*StepRecord),
		Engine: EngineState{
			Todos:    make(map[string]*ItemRuntimeState),
			Finalize: FinalizeState{Status: FinalizePending},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddEvent appends to the session event log.
func (s *SessionState) AddEvent(eventType string, data map[string]any, at string) {
	s.Events = append(s.Events, Event{Type: eventType, Data: data, At: at})
}

// RecordStep upserts a step record.
func (s *SessionState) RecordStep(stepID string, status StepStatus, result Result, at string) {
	if s.Steps == nil {
		s.Steps = make(map[string]*StepRecord)
	}
	s.Steps[stepID] = &StepRecord{Status: status, At: at, Result: result}
}
