// Package notify sends desktop notifications when a session needs attention.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Command builds the notifier invocation for the current platform. ok is
// false where no notifier is known.
func Command(goos, title, message string) (name string, args []string, ok bool) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf(
			`display notification "%s" with title "%s" sound name "default"`,
			escapeAppleScript(message), escapeAppleScript(title),
		)
		return "osascript", []string{"-e", script}, true
	case "linux", "freebsd", "openbsd":
		return "notify-send", []string{"--app-name=baton", title, message}, true
	default:
		return "", nil, false
	}
}

// Send shows a notification. Platforms without a notifier are a no-op.
func Send(title, message string) error {
	name, args, ok := Command(runtime.GOOS, title, message)
	if !ok {
		return nil
	}
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not available: %w", name, err)
	}
	if out, err := exec.Command(name, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// SessionMessage renders the notification text for a finished session.
// halted sessions list the failed items.
func SessionMessage(sessionID string, halted bool, reason string, failed []string) (title, message string) {
	if !halted {
		return "baton: session done", fmt.Sprintf("Session %s finished.", sessionID)
	}
	message = fmt.Sprintf("Session %s halted", sessionID)
	if reason != "" {
		message += ": " + reason
	}
	if len(failed) > 0 {
		message += " (failed: " + strings.Join(failed, ", ") + ")"
	}
	return "baton: session halted", message
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
