package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"nordagri/internal/app"
	"nordagri/internal/models"

	"github.com/spf13/cobra"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect, fill and flush the offline queue",
	}
	cmd.AddCommand(newQueuePeekCommand(opts))
	cmd.AddCommand(newQueueEnqueueCommand(opts))
	cmd.AddCommand(newQueueFlushCommand(opts))
	return cmd
}

func newQueuePeekCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "peek",
		Short: "List queued operations without replaying them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
				ops, err := a.Queue.Peek(ctx)
				if err != nil {
					return err
				}
				return printOperations(out, opts.Format, ops)
			})
		},
	}
}

func newQueueEnqueueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <kind> <json>",
		Short: "Queue an operation for later replay",
		Long: `Queue an operation for later replay.

Kinds: time_session, fuel_log. The payload must be a JSON object.

Examples:
  syncctl queue enqueue time_session '{"equipment_id":7,"duration_minutes":45}'
  syncctl queue enqueue fuel_log '{"equipment_id":7,"liters":80}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
				op, err := a.Queue.Enqueue(ctx, models.OperationKind(args[0]), json.RawMessage(args[1]))
				if err != nil {
					return err
				}
				return printResult(out, opts.Format, op, fmt.Sprintf("queued %s %s", op.Kind, op.ID))
			})
		},
	}
}

func newQueueFlushCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Replay every queued operation now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App, out io.Writer) error {
				result, err := a.Queue.Flush(ctx)
				if err != nil {
					return err
				}
				text := fmt.Sprintf("synced %d, failed %d, dead-lettered %d, remaining %d",
					result.Synced, result.Failed, result.DeadLettered, result.Remaining)
				return printResult(out, opts.Format, result, text)
			})
		},
	}
}
