package yaml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoBackup is returned when a restore is requested but no .bak exists.
var ErrNoBackup = errors.New("no backup file")

// Quarantine moves a corrupt file into <batonDir>/quarantine and returns the
// new path.
func Quarantine(batonDir, filePath string) (string, error) {
	quarantineDir := filepath.Join(batonDir, "quarantine")
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}

	timestamp := time.Now().Format("20060102T150405")
	name := fmt.Sprintf("%s.%s.corrupt", filepath.Base(filePath), timestamp)
	dst := filepath.Join(quarantineDir, name)

	if err := os.Rename(filePath, dst); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	return dst, nil
}

// RestoreFromBackup copies path.bak over path after checking it parses.
func RestoreFromBackup(filePath string) error {
	bakPath := filePath + ".bak"
	content, err := os.ReadFile(bakPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNoBackup, bakPath)
		}
		return fmt.Errorf("read backup: %w", err)
	}
	if err := validateYAML(content); err != nil {
		return fmt.Errorf("backup YAML is also corrupted: %w", err)
	}
	// the current file may be the corrupt one; keep the backup intact
	if err := replaceFile(filePath, content, false); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}

// RecoverCorruptedFile quarantines filePath (if present) and restores it from
// its backup.
func RecoverCorruptedFile(batonDir, filePath string) (string, error) {
	var quarantined string
	if _, err := os.Stat(filePath); err == nil {
		q, err := Quarantine(batonDir, filePath)
		if err != nil {
			return "", fmt.Errorf("quarantine failed: %w", err)
		}
		quarantined = q
	}
	if err := RestoreFromBackup(filePath); err != nil {
		return quarantined, err
	}
	return quarantined, nil
}
