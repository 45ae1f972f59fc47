package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Dhanuzh/refactorai/internal/bridge"
	"github.com/Dhanuzh/refactorai/internal/command"
	"github.com/Dhanuzh/refactorai/internal/config"
	"github.com/Dhanuzh/refactorai/internal/editor"
	"github.com/Dhanuzh/refactorai/internal/tui"
)

const defaultListenAddr = "127.0.0.1:7337"

func (a *app) serveCmd() *cobra.Command {
	var (
		stdio  bool
		listen string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an editor plugin over stdio or a local websocket",
		Long: `Run the engine for an editor plugin. The plugin sends execute requests with a
document snapshot and selection; the engine answers with the edits to apply,
credential prompts, and a final outcome. Settings changes are picked up
without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			creds := config.NewCredentialProvider(a.store,
				bridge.Prompter{},
				bridge.Notifier{Fallback: tui.NewNotifier(cmd.ErrOrStderr())},
				a.logger)
			engine := &bridge.Engine{
				Credentials: creds,
				Settings:    a.store.Settings,
				Clients:     command.OpenAIClients,
				Applicator:  editor.NewApplicator(a.logger),
				Logger:      a.logger,
			}

			err := a.store.Watch(ctx, a.logger, func(s config.Settings) {
				creds.Invalidate()
				a.logger.Info("settings reloaded",
					zap.String("model", s.Model),
					zap.Bool("streaming", s.Streaming))
			})
			if err != nil {
				a.logger.Warn("settings watcher disabled", zap.Error(err))
			}

			if stdio {
				return ignoreCanceled(bridge.ServeStdio(ctx, engine, cmd.InOrStdin(), cmd.OutOrStdout()))
			}
			return bridge.NewServer(engine, version).ListenAndServe(ctx, listen)
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "Speak JSON lines on stdin/stdout")
	cmd.Flags().StringVarP(&listen, "listen", "l", defaultListenAddr, "Websocket listen address")
	cmd.MarkFlagsMutuallyExclusive("stdio", "listen")
	return cmd
}
