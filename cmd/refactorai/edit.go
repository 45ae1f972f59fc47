package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Dhanuzh/refactorai/internal/command"
	"github.com/Dhanuzh/refactorai/internal/config"
	"github.com/Dhanuzh/refactorai/internal/editor"
	"github.com/Dhanuzh/refactorai/internal/provider"
	"github.com/Dhanuzh/refactorai/internal/tui"
)

type editFlags struct {
	file      string
	selection string
	stream    bool
	model     string
	dryRun    bool
}

// editCmd runs one action against a file on disk.
func (a *app) editCmd(action command.Action) *cobra.Command {
	var f editFlags

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Replace the selection with the model's refactoring",
		Long: `Send the selected code to the model with a refactoring prompt and replace
the selection with the answer.`,
		Example: "  refactorai suggest --file main.go --selection 10:0-24:1",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runEdit(cmd, action, f)
		},
	}
	if action == command.ActionGenerate {
		cmd.Use = "generate"
		cmd.Short = "Append generated code after the selection"
		cmd.Long = `Send the selected code to the model as a prompt and insert the answer on a
new line after the selection.`
		cmd.Example = "  refactorai generate --file main.go --selection 3:0-3:42 --stream"
	}

	cmd.Flags().StringVarP(&f.file, "file", "f", "", "File to edit")
	cmd.Flags().StringVarP(&f.selection, "selection", "s", "", "Selection as LINE:COL-LINE:COL (0-based)")
	cmd.Flags().BoolVar(&f.stream, "stream", false, "Stream the answer into the file (overrides the streaming setting)")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Model to use (overrides the MODEL setting)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Print the edited document instead of saving it")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("selection")
	return cmd
}

func (a *app) runEdit(cmd *cobra.Command, action command.Action, f editFlags) error {
	buf, err := editor.LoadFile(f.file)
	if err != nil {
		return err
	}
	sel, err := editor.ParseRange(f.selection)
	if err != nil {
		return err
	}

	streamSet := cmd.Flags().Changed("stream")
	settings := func() config.Settings {
		s := a.store.Settings()
		if streamSet {
			s.Streaming = f.stream
		}
		if f.model != "" {
			s.Model = f.model
		}
		return s
	}

	notifier := tui.NewNotifier(cmd.ErrOrStderr())
	prompter := tui.NewTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	creds := config.NewCredentialProvider(a.store, prompter, notifier, a.logger)

	runner := command.NewRunner(command.Options{
		Host:        command.StaticHost{Editor: &command.StaticEditor{Doc: buf, Sel: sel}},
		Credentials: creds,
		Settings:    settings,
		Clients:     command.OpenAIClients,
		Applicator:  editor.NewApplicator(a.logger),
		Sink:        command.LogSink(a.logger),
		Logger:      a.logger,
	})
	reg := command.NewRegistry()
	if err := command.RegisterAll(reg, runner); err != nil {
		return err
	}

	out, err := reg.Execute(cmd.Context(), action.ID())
	if err != nil {
		return err
	}
	if out.Err != nil {
		var te *provider.TransportError
		if errors.As(out.Err, &te) {
			notifier.ShowError(cmd.Context(), provider.MakeUserFriendly(out.Err).Error())
		}
		// Partial streamed text is kept, as an editor would keep it.
		if out.Applied && !f.dryRun {
			if saveErr := buf.Save(); saveErr != nil {
				a.logger.Warn("saving partial edit failed", zap.Error(saveErr))
			}
		}
		return out.Err
	}

	if f.dryRun {
		fmt.Fprint(cmd.OutOrStdout(), buf.Text())
		return nil
	}
	if !out.Applied {
		notifier.ShowInfo("The model returned nothing; " + buf.Path() + " is unchanged.")
		return nil
	}
	if err := buf.Save(); err != nil {
		return err
	}
	notifier.ShowInfo(fmt.Sprintf("%s applied to %s", action, buf.Path()))
	return nil
}
