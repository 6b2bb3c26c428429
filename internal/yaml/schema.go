package yaml

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	yamlv3 "gopkg.in/yaml.v3"
)

// File types baton persists. Every document starts with
//
//	schema_version: N
//	file_type: <type>
const (
	FileTypeSessionState = "session_state"
	FileTypePlan         = "plan"
	FileTypeOutputs      = "outputs"
)

// schemaVersions is the newest version this build reads and writes for each
// file type. Older versions down to 1 are accepted on read.
var schemaVersions = map[string]int{
	FileTypeSessionState: 1,
	FileTypePlan:         1,
	FileTypeOutputs:      1,
}

// SchemaVersion returns the version writers stamp on fileType documents.
func SchemaVersion(fileType string) int {
	return schemaVersions[fileType]
}

// SchemaError reports a document whose header this build cannot accept.
type SchemaError struct {
	FileType string
	Version  int
	Reason   string
}

func (e *SchemaError) Error() string {
	if e.FileType == "" {
		return "schema header: " + e.Reason
	}
	return fmt.Sprintf("%s schema header: %s", e.FileType, e.Reason)
}

type Header struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
}

// Check validates h against the file type the caller expects. An empty want
// accepts any known type.
func (h Header) Check(want string) error {
	fail := func(format string, args ...any) error {
		return &SchemaError{FileType: h.FileType, Version: h.SchemaVersion, Reason: fmt.Sprintf(format, args...)}
	}
	if h.FileType == "" {
		return fail("missing file_type")
	}
	newest, known := schemaVersions[h.FileType]
	if !known {
		return fail("unknown file_type %q (known: %s)", h.FileType, knownTypes())
	}
	if want != "" && h.FileType != want {
		return fail("expected file_type %q", want)
	}
	switch {
	case h.SchemaVersion == 0:
		return fail("missing schema_version")
	case h.SchemaVersion < 0:
		return fail("invalid schema_version %d", h.SchemaVersion)
	case h.SchemaVersion > newest:
		return fail("schema_version %d is newer than this baton supports (%d)", h.SchemaVersion, newest)
	}
	return nil
}

func knownTypes() string {
	names := make([]string, 0, len(schemaVersions))
	for name := range schemaVersions {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Decode checks the header of content against fileType, then unmarshals the
// whole document into out.
func Decode(content []byte, fileType string, out any) error {
	var h Header
	if err := yamlv3.Unmarshal(content, &h); err != nil {
		return fmt.Errorf("parse %s: %w", fileType, err)
	}
	if err := h.Check(fileType); err != nil {
		return err
	}
	if err := yamlv3.Unmarshal(content, out); err != nil {
		return fmt.Errorf("parse %s: %w", fileType, err)
	}
	return nil
}

// DecodeFile is Decode on the contents of path. A missing file keeps
// os.ErrNotExist in the chain.
func DecodeFile(path, fileType string, out any) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return Decode(content, fileType, out)
}

// IsSchemaError reports whether err came from a rejected header.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
