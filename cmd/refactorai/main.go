package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	// earlyinit must be listed before bubbletea so its init() runs first.
	_ "github.com/Dhanuzh/refactorai/internal/earlyinit"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Dhanuzh/refactorai/internal/command"
	"github.com/Dhanuzh/refactorai/internal/config"
	"github.com/Dhanuzh/refactorai/internal/logging"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

// app carries what every subcommand shares once the root has run.
type app struct {
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	settings string
	logLevel string
	verbose  bool

	store  *config.Store
	logger *zap.Logger
}

func main() {
	a := &app{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := a.rootCmd().ExecuteContext(ctx)
	stop()
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "refactorai",
		Short: "Refactor with AI - rewrite or extend selected code with a chat model",
		Long: `refactorai sends the selected code to an OpenAI chat model and writes the
answer back into the document, either in one edit or streamed as it arrives.
It runs against files directly or serves an editor plugin over stdio or a
local websocket.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup() },
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.PersistentFlags().StringVar(&a.settings, "settings", "", "Settings file (default: user config dir, or $"+config.EnvSettings+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.editCmd(command.ActionRefactor),
		a.editCmd(command.ActionGenerate),
		a.serveCmd(),
		a.authCmd(),
		a.configCmd(),
		versionCmd(),
	)
	return root
}

// setup loads the settings and builds the logger. Flags win over settings.
func (a *app) setup() error {
	store, err := config.Load(a.settings)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	a.store = store

	settings := store.Settings()
	level := settings.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	if a.verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level})
	if err != nil {
		return err
	}
	a.logger = logger

	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings in %s: %w", store.Path(), err)
	}
	return nil
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings with the API key redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(a.store.Settings().Redacted(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	path := &cobra.Command{
		Use:   "path",
		Short: "Print the settings file location",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), a.store.Path())
		},
	}
	cmd.AddCommand(show, path)

	// Default to show
	cmd.RunE = show.RunE
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "refactorai version %s (%s)\n", version, commit)
			fmt.Fprintf(cmd.OutOrStdout(), "go version %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
