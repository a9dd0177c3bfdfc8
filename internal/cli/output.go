package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"nordagri/internal/models"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOperations(w io.Writer, format string, ops []models.QueuedOperation) error {
	if format == "json" {
		if ops == nil {
			ops = []models.QueuedOperation{}
		}
		return writeJSON(w, ops)
	}
	if len(ops) == 0 {
		_, err := fmt.Fprintln(w, "queue is empty")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tRETRIES\tENQUEUED\tLAST ERROR")
	for _, op := range ops {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", op.ID, op.Kind, op.RetryCount, formatTime(op.EnqueuedAt), op.LastError)
	}
	return tw.Flush()
}

func printDeadLetters(w io.Writer, format string, letters []models.DeadLetter) error {
	if format == "json" {
		if letters == nil {
			letters = []models.DeadLetter{}
		}
		return writeJSON(w, letters)
	}
	if len(letters) == 0 {
		_, err := fmt.Fprintln(w, "no dead letters")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOPERATION\tKIND\tRETRIES\tFAILED\tREASON")
	for _, d := range letters {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			d.ID, d.Operation.ID, d.Operation.Kind, d.Operation.RetryCount, formatTime(d.FailedAt), d.Reason)
	}
	return tw.Flush()
}

func printResult(w io.Writer, format string, v any, text string) error {
	if format == "json" {
		return writeJSON(w, v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
