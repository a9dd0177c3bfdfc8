package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"nordagri/internal/app"
	"nordagri/internal/config"
	"nordagri/internal/logging"

	"github.com/spf13/cobra"
)

// Opener builds the App a command works on.
type Opener func(ctx context.Context, configPath string) (*app.App, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"

	open Opener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the syncctl root command. A nil open loads the
// config file and opens the configured storage.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = OpenFromConfig
	}
	opts := &RootOptions{open: open}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}

	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Inspect and replay the offline operation queue",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", defaultConfig, "path to config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewDeadLettersCommand(opts))

	return cmd
}

// OpenFromConfig loads configPath and wires the App. Logs go to stderr so
// command output stays parseable.
func OpenFromConfig(ctx context.Context, configPath string) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Logging.Output = "stderr"
	cfg.Logging.FilePath = ""

	logger, _, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return app.New(ctx, cfg, logging.Component(logger, "syncctl"))
}

func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, out io.Writer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.open(ctx, o.ConfigPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, cmd.OutOrStdout())
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
