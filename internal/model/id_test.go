package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSessionID(t *testing.T) {
	a := GenerateSessionID()
	b := GenerateSessionID()
	assert.True(t, strings.HasPrefix(a, "ses_"))
	assert.NotEqual(t, a, b)
}

func TestValidItemID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"T1", true},
		{"auth-service_v2", true},
		{"", false},
		{"a.b", false},
		{"has space", false},
		{FinalizeItemID, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidItemID(tt.id), "ValidItemID(%q)", tt.id)
	}
}
