package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/baton/internal/events"
	"github.com/msageha/baton/internal/inbox"
	"github.com/msageha/baton/internal/logging"
	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/internal/notify"
	"github.com/msageha/baton/internal/recipe"
	"github.com/msageha/baton/internal/sequencer"
	"github.com/msageha/baton/internal/setup"
	"github.com/msageha/baton/internal/status"
)

func newInitCommand(opts *globalOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create the .baton workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.dir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				dir = "."
			}
			base, err := setup.Run(dir, name)
			if err != nil {
				return err
			}
			return writeJSON(opts.stdout, map[string]string{"workspace": base})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name (default: directory name)")
	return cmd
}

func newStartCommand(opts *globalOptions) *cobra.Command {
	var planPath, recipePath, mode string
	var force bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new session for a recipe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := model.SessionSettings{Mode: model.Mode(mode)}
			switch settings.Mode {
			case "", model.ModeFull, model.ModeReduced:
			default:
				return fmt.Errorf("invalid --mode %q (want full or reduced)", mode)
			}
			if planPath != "" {
				abs, err := filepath.Abs(planPath)
				if err != nil {
					return err
				}
				settings.PlanPath = abs
			}

			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := loadRecipe(a, recipePath)
			if err != nil {
				return err
			}
			var s *model.SessionState
			err = a.withLock(cmd.Context(), func() error {
				if a.store.Exists() && !force {
					return fmt.Errorf("a session already exists at %s (use --force to replace it)", a.store.Path())
				}
				if err := a.ctxStore.Init(); err != nil {
					return err
				}
				s, err = a.seq.Start(cmd.Context(), r, settings)
				return err
			})
			if err != nil {
				return err
			}
			return writeJSON(opts.stdout, map[string]any{
				"sessionId": s.SessionID,
				"recipe":    r.Name,
				"steps":     len(r.Steps),
			})
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "plan file (default: engine.plan_path from config)")
	cmd.Flags().StringVar(&recipePath, "recipe", "", "recipe file (default: engine.recipe_path from config)")
	cmd.Flags().StringVar(&mode, "mode", "", "chain mode override: full or reduced")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing session")
	return cmd
}

// loadRecipe reads the recipe from the flag, then config; the embedded
// default is used when the configured file does not exist.
func loadRecipe(a *app, flagPath string) (*model.Recipe, error) {
	if flagPath != "" {
		return recipe.Load(flagPath)
	}
	path := setup.Resolve(a.batonDir, a.cfg.Engine.RecipePath)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		a.logger.Log(logging.LevelInfo, "cli", "recipe %s not found, using embedded default", path)
		return recipe.Default()
	}
	return recipe.Load(path)
}

func newNextCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Print the outstanding instruction or the final report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			var resp sequencer.Response
			err = a.withLock(cmd.Context(), func() error {
				resp, err = a.seq.Next(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}
			return writeJSON(opts.stdout, resp)
		},
	}
}

func newCompleteCommand(opts *globalOptions) *cobra.Command {
	var resultJSON, resultFile string
	cmd := &cobra.Command{
		Use:   "complete <step-id>",
		Short: "Record the result of the outstanding instruction",
		Long: `Record the actor's result for a step. The step id is the "stepId" printed
by "baton next": a recipe step id or a graph node id such as A.verify.
The result is a JSON object given inline (--result) or read from a JSON or
YAML file (--result-file, "-" for stdin).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := readResult(opts.stdin, resultJSON, resultFile)
			if err != nil {
				return err
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			var resp sequencer.CompleteResponse
			err = a.withLock(cmd.Context(), func() error {
				resp, err = a.seq.Complete(cmd.Context(), args[0], result)
				return err
			})
			if err != nil {
				return err
			}
			return writeJSON(opts.stdout, resp)
		},
	}
	cmd.Flags().StringVar(&resultJSON, "result", "", "result as a JSON object")
	cmd.Flags().StringVar(&resultFile, "result-file", "", "read the result from a JSON or YAML file")
	cmd.MarkFlagsMutuallyExclusive("result", "result-file")
	return cmd
}

func readResult(stdin io.Reader, inline, file string) (model.Result, error) {
	var data []byte
	isJSON := true
	switch {
	case inline != "":
		data = []byte(inline)
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read result file: %w", err)
		}
		data = b
		ext := strings.ToLower(filepath.Ext(file))
		isJSON = ext != ".yaml" && ext != ".yml"
	default:
		return model.Result{}, nil
	}

	result := model.Result{}
	var err error
	if isJSON {
		err = json.Unmarshal(data, &result)
	} else {
		err = yamlv3.Unmarshal(data, &result)
	}
	if err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return result, nil
}

func newInvalidateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <step-id>",
		Short: "Reset a step and everything after it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			var resp sequencer.InvalidateResponse
			err = a.withLock(cmd.Context(), func() error {
				resp, err = a.seq.Invalidate(cmd.Context(), args[0])
				return err
			})
			if err != nil {
				return err
			}
			return writeJSON(opts.stdout, resp)
		},
	}
}

func newStatusCommand(opts *globalOptions) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show session progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			batonDir, err := opts.workspace()
			if err != nil {
				return err
			}
			return status.Run(cmd.Context(), batonDir, jsonOutput, opts.stdout)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	return cmd
}

func newWatchCommand(opts *globalOptions) *cobra.Command {
	var desktop bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Apply result files dropped into .baton/inbox",
		Long: `Watch .baton/inbox for result files of the form
  {"step_id": "A.worker", "result": {...}}
(JSON or YAML). Each file is applied like "baton complete", then moved to
inbox/processed (or inbox/rejected with a .error note). One JSON event per
line is printed for every file and for the instruction that follows.
With --notify a desktop notification is shown when the session finishes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bus := events.NewBus(64)
			defer bus.Close()
			enc := json.NewEncoder(opts.stdout)
			bus.Subscribe(func(e events.Event) {
				_ = enc.Encode(map[string]any{"event": e.Type, "at": e.Timestamp.Format(time.RFC3339), "data": e.Data})
			}, events.EventResultApplied, events.EventResultRejected, events.EventInstructionIssued)
			if desktop {
				bus.Subscribe(func(e events.Event) {
					resp, ok := e.Data["response"].(sequencer.Response)
					if !ok || !resp.Done {
						return
					}
					title, msg := notify.SessionMessage(resp.SessionID, resp.Halted, resp.Reason, resp.FailedItems)
					if err := notify.Send(title, msg); err != nil {
						a.logger.Log(logging.LevelWarn, "cli", "desktop notification: %v", err)
					}
				}, events.EventInstructionIssued)
			}

			complete := func(ctx context.Context, stepID string, result model.Result) error {
				return a.withLock(ctx, func() error {
					_, err := a.seq.Complete(ctx, stepID, result)
					return err
				})
			}
			next := func(ctx context.Context) (any, error) {
				var resp sequencer.Response
				err := a.withLock(ctx, func() error {
					var err error
					resp, err = a.seq.Next(ctx)
					return err
				})
				return resp, err
			}

			w := inbox.New(filepath.Join(a.batonDir, "inbox"), complete,
				inbox.WithDebounce(time.Duration(a.cfg.Watcher.DebounceMs)*time.Millisecond),
				inbox.WithBus(bus),
				inbox.WithLogger(a.logger),
				inbox.WithNext(next),
			)
			return w.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&desktop, "notify", false, "show a desktop notification when the session is done or halted")
	return cmd
}

func newRestoreCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore the session file from its backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			var quarantined string
			err = a.withLock(cmd.Context(), func() error {
				quarantined, err = a.store.Restore()
				return err
			})
			if err != nil {
				return err
			}
			a.logger.Log(logging.LevelWarn, "cli", "session restored from backup quarantined=%s", quarantined)
			return writeJSON(opts.stdout, map[string]string{
				"restored":    a.store.Path(),
				"quarantined": quarantined,
			})
		},
	}
}
