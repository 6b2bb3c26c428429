package triage

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuditEntry is the structured note written to the audit log.
type AuditEntry struct {
	At      string         `json:"at"`
	Kind    string         `json:"kind"`
	ItemID  string         `json:"item_id"`
	Details map[string]any `json:"details,omitempty"`
}

// BuildAuditEntry renders one audit line. Map keys are emitted sorted, so the
// same input always yields the same text.
func BuildAuditEntry(kind, itemID string, details map[string]any, at time.Time) string {
	entry := AuditEntry{
		At:      at.UTC().Format(time.RFC3339),
		Kind:    kind,
		ItemID:  itemID,
		Details: details,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		// details held something json cannot encode; keep the note readable
		return fmt.Sprintf(`{"at":%q,"kind":%q,"item_id":%q,"details_error":%q}`, entry.At, kind, itemID, err.Error())
	}
	return string(data)
}
