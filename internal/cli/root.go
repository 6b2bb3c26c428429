// Package cli implements the baton command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/msageha/baton/internal/plan"
)

const version = "0.3.0"

type globalOptions struct {
	dir      string
	logLevel string
	stdout   io.Writer
	stderr   io.Writer
	stdin    io.Reader
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		printError(os.Stderr, err)
		return 1
	}
	return 0
}

// NewRootCommand builds the command tree writing to the given streams.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{stdout: stdout, stderr: stderr, stdin: stdin}

	root := &cobra.Command{
		Use:   "baton",
		Short: "Drive a multi-step plan one instruction at a time",
		Long: `baton hands an external actor one instruction at a time and records the
result it reports. Responses are printed as JSON on stdout; logs go to
.baton/logs/baton.log.

Typical loop:
  baton init
  baton start --plan plan.yaml
  baton next                      # run the instruction
  baton complete <step-id> --result '{...}'
  baton next                      # ... until "done": true`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.dir, "dir", "", "workspace root (default: nearest directory containing .baton)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (default from config)")

	root.AddCommand(
		newInitCommand(opts),
		newStartCommand(opts),
		newNextCommand(opts),
		newCompleteCommand(opts),
		newInvalidateCommand(opts),
		newStatusCommand(opts),
		newWatchCommand(opts),
		newRestoreCommand(opts),
		newVersionCommand(opts),
	)
	return root
}

func newVersionCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the baton version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(opts.stdout, "baton %s\n", version)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printError prints validation errors one per line and anything else as a
// single message.
func printError(w io.Writer, err error) {
	var verrs *plan.ValidationErrors
	if errors.As(err, &verrs) {
		fmt.Fprint(w, verrs.FormatStderr())
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}
