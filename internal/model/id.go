package model

import (
	"regexp"

	"github.com/google/uuid"
)

var itemIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// GenerateSessionID returns a new random session id.
func GenerateSessionID() string {
	return "ses_" + uuid.NewString()
}

// ValidItemID reports whether id may be used as a work item id. Dots are
// excluded because node ids are "<item>.<phase>".
func ValidItemID(id string) bool {
	return itemIDRegex.MatchString(id) && id != FinalizeItemID
}
