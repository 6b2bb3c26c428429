package plan

import (
	"fmt"
	"strings"
)

// ValidationError is one problem at a YAML/TOML field path such as
// items[2].id.
type ValidationError struct {
	FieldPath string
	Message   string
}

func (e ValidationError) Error() string {
	return e.FieldPath + ": " + e.Message
}

// ValidationErrors collects every problem found in a document so the user
// sees all of them at once. Source names the file when known.
type ValidationErrors struct {
	Source string
	Errors []ValidationError
}

func (ve *ValidationErrors) Add(fieldPath, message string) {
	ve.Errors = append(ve.Errors, ValidationError{FieldPath: fieldPath, Message: message})
}

func (ve *ValidationErrors) Addf(fieldPath, format string, args ...any) {
	ve.Add(fieldPath, fmt.Sprintf(format, args...))
}

func (ve *ValidationErrors) HasErrors() bool {
	return ve != nil && len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	head := fmt.Sprintf("%d validation error(s)", len(ve.Errors))
	if ve.Source != "" {
		head = ve.Source + ": " + head
	}
	msgs := make([]string, 0, len(ve.Errors)+1)
	msgs = append(msgs, head)
	for _, e := range ve.Errors {
		msgs = append(msgs, "  "+e.Error())
	}
	return strings.Join(msgs, "\n")
}

// FormatStderr renders one line per problem, prefixed with the source file.
func (ve *ValidationErrors) FormatStderr() string {
	prefix := "error: "
	if ve.Source != "" {
		prefix += ve.Source + ": "
	}
	var sb strings.Builder
	for _, e := range ve.Errors {
		sb.WriteString(prefix)
		sb.WriteString(e.Error())
		sb.WriteByte('\n')
	}
	return sb.String()
}
