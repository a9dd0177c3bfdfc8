package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"nordagri/internal/app"
	"nordagri/internal/export"

	"github.com/spf13/cobra"
)

var errNoSelection = errors.New("pass dead-letter ids or --all")

// NewDeadLettersCommand creates the deadletters command group.
func NewDeadLettersCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dl"},
		Short:   "Manage operations that are no longer replayed automatically",
	}
	cmd.AddCommand(newDeadLettersListCommand(opts))
	cmd.AddCommand(newDeadLettersRequeueCommand(opts))
	cmd.AddCommand(newDeadLettersPurgeCommand(opts))
	cmd.AddCommand(newDeadLettersExportCommand(opts))
	return cmd
}

func newDeadLettersListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dead letters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
				letters, err := a.Queue.DeadLetters(ctx)
				if err != nil {
					return err
				}
				return printDeadLetters(out, opts.Format, letters)
			})
		},
	}
}

func newDeadLettersRequeueCommand(opts *RootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "requeue [id...]",
		Short: "Move dead letters back to the queue with retries reset",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return errNoSelection
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
				n, err := a.Queue.Requeue(ctx, args...)
				if err != nil {
					return err
				}
				return printResult(out, opts.Format, map[string]int{"requeued": n}, fmt.Sprintf("requeued %d", n))
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "requeue every dead letter")
	return cmd
}

func newDeadLettersPurgeCommand(opts *RootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "purge [id...]",
		Short: "Delete dead letters",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return errNoSelection
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
				n, err := a.Queue.Purge(ctx, args...)
				if err != nil {
					return err
				}
				return printResult(out, opts.Format, map[string]int{"purged": n}, fmt.Sprintf("purged %d", n))
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every dead letter")
	return cmd
}

func newDeadLettersExportCommand(opts *RootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write dead letters to an .xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
				letters, err := a.Queue.DeadLetters(ctx)
				if err != nil {
					return err
				}
				target := dir
				if target == "" {
					target = a.Config.Exports.Path
				}
				path, err := export.DeadLettersXLSX(target, letters, time.Now())
				if err != nil {
					return err
				}
				return printResult(out, opts.Format, map[string]any{"path": path, "count": len(letters)},
					fmt.Sprintf("exported %d dead letter(s) to %s", len(letters), path))
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "output directory (default exports.path)")
	return cmd
}
