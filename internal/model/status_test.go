package model

import "testing"

func TestIsItemTerminal(t *testing.T) {
	tests := []struct {
		status   ItemStatus
		terminal bool
	}{
		{ItemPending, false},
		{ItemWorkerDispatched, false},
		{ItemVerifyDispatched, false},
		{ItemWrapupDispatched, false},
		{ItemCommitDispatched, false},
		{ItemDone, true},
		{ItemFailed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := IsItemTerminal(tt.status); got != tt.terminal {
				t.Errorf("IsItemTerminal(%q) = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestValidateItemTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    ItemStatus
		to      ItemStatus
		wantErr bool
	}{
		{"pending→worker", ItemPending, ItemWorkerDispatched, false},
		{"worker→verify", ItemWorkerDispatched, ItemVerifyDispatched, false},
		{"worker→wrapup (reduced)", ItemWorkerDispatched, ItemWrapupDispatched, false},
		{"verify→pending (retry)", ItemVerifyDispatched, ItemPending, false},
		{"verify→failed", ItemVerifyDispatched, ItemFailed, false},
		{"wrapup→commit", ItemWrapupDispatched, ItemCommitDispatched, false},
		{"commit→done", ItemCommitDispatched, ItemDone, false},
		{"same status", ItemWrapupDispatched, ItemWrapupDispatched, false},
		{"pending→commit", ItemPending, ItemCommitDispatched, true},
		{"wrapup→pending", ItemWrapupDispatched, ItemPending, true},
		{"done→pending", ItemDone, ItemPending, true},
		{"failed→worker", ItemFailed, ItemWorkerDispatched, true},
		{"unknown", ItemStatus("bogus"), ItemDone, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateItemTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateItemTransition(%q, %q) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestDispatchStatusRoundTrip(t *testing.T) {
	for _, p := range []Phase{PhaseWorker, PhaseVerify, PhaseWrapup, PhaseCommit} {
		s, ok := DispatchStatus(p)
		if !ok {
			t.Fatalf("DispatchStatus(%q) not found", p)
		}
		back, ok := DispatchedPhase(s)
		if !ok || back != p {
			t.Errorf("DispatchedPhase(%q) = %q, %v; want %q", s, back, ok, p)
		}
	}
	if _, ok := DispatchStatus(PhaseCodeReview); ok {
		t.Error("finalize phases have no item dispatch status")
	}
	if _, ok := DispatchedPhase(ItemDone); ok {
		t.Error("done is not a dispatch status")
	}
}
