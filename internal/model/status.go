package model

import "fmt"

// ItemStatus tracks where a work item is in its phase chain. Status moves
// forward when a phase is dispatched; commit completion moves it to done.
type ItemStatus string

const (
	ItemPending          ItemStatus = "pending"
	ItemWorkerDispatched ItemStatus = "worker_dispatched"
	ItemVerifyDispatched ItemStatus = "verify_dispatched"
	ItemWrapupDispatched ItemStatus = "wrapup_dispatched"
	ItemCommitDispatched ItemStatus = "commit_dispatched"
	ItemDone             ItemStatus = "done"
	ItemFailed           ItemStatus = "failed"
)

type NodeStatus string

const (
	NodePending  NodeStatus = "pending"
	NodeComplete NodeStatus = "complete"
)

type StepStatus string

const (
	StepComplete StepStatus = "complete"
	StepStale    StepStatus = "stale"
)

type FinalizeStatus string

const (
	FinalizePending FinalizeStatus = "pending"
	FinalizeRunning FinalizeStatus = "running"
	FinalizeDone    FinalizeStatus = "done"
)

var terminalItemStatuses = map[ItemStatus]bool{
	ItemDone:   true,
	ItemFailed: true,
}

// Item state transitions (engine.todos). verify → pending is the retry path.
var validItemTransitions = map[ItemStatus]map[ItemStatus]bool{
	ItemPending: {
		ItemWorkerDispatched: true,
		ItemFailed:           true,
	},
	ItemWorkerDispatched: {
		ItemVerifyDispatched: true,
		ItemWrapupDispatched: true,
		ItemFailed:           true,
	},
	ItemVerifyDispatched: {
		ItemWrapupDispatched: true,
		ItemPending:          true,
		ItemFailed:           true,
	},
	ItemWrapupDispatched: {
		ItemCommitDispatched: true,
		ItemFailed:           true,
	},
	ItemCommitDispatched: {
		ItemDone:   true,
		ItemFailed: true,
	},
}

// dispatchStatus maps a chain phase to the status an item takes when that
// phase is handed out.
var dispatchStatus = map[Phase]ItemStatus{
	PhaseWorker: ItemWorkerDispatched,
	PhaseVerify: ItemVerifyDispatched,
	PhaseWrapup: ItemWrapupDispatched,
	PhaseCommit: ItemCommitDispatched,
}

func IsItemTerminal(s ItemStatus) bool {
	return terminalItemStatuses[s]
}

// DispatchStatus returns the item status for a dispatched phase.
func DispatchStatus(p Phase) (ItemStatus, bool) {
	s, ok := dispatchStatus[p]
	return s, ok
}

// DispatchedPhase is the inverse of DispatchStatus.
func DispatchedPhase(s ItemStatus) (Phase, bool) {
	for p, st := range dispatchStatus {
		if st == s {
			return p, true
		}
	}
	return "", false
}

func ValidateItemTransition(from, to ItemStatus) error {
	if from == to {
		return nil
	}
	if IsItemTerminal(from) {
		return fmt.Errorf("cannot transition from terminal item status %q", from)
	}
	allowed, ok := validItemTransitions[from]
	if !ok {
		return fmt.Errorf("unknown item status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid item transition: %q → %q", from, to)
	}
	return nil
}
