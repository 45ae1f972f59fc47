package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dhanuzh/refactorai/internal/config"
	"github.com/Dhanuzh/refactorai/internal/tui"
)

func (a *app) authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "auth",
		Aliases: []string{"login"},
		Short:   "Manage the OpenAI API key and organization ID",
	}

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Prompt for and store the API key and organization ID",
		RunE:  a.login,
	}

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Clear(a.store); err != nil {
				return err
			}
			tui.NewNotifier(cmd.ErrOrStderr()).ShowInfo("Credentials removed from " + a.store.Path())
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether credentials are configured",
		Run: func(cmd *cobra.Command, args []string) {
			s := a.store.Settings()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-16s %s\n", "Settings", a.store.Path())
			fmt.Fprintf(w, "%-16s %s\n", "API key", valueOrMissing(s.Redacted().APIKey))
			fmt.Fprintf(w, "%-16s %s\n", "Organization ID", valueOrMissing(s.OrganizationID))
			status := "not configured"
			if s.Credentials().Complete() {
				status = "active"
			}
			fmt.Fprintf(w, "%-16s %s\n", "Status", status)
		},
	}

	cmd.AddCommand(loginCmd, logoutCmd, statusCmd)

	// Default to login if no subcommand given
	cmd.RunE = a.login
	return cmd
}

// login always asks, even when credentials are already stored.
func (a *app) login(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	prompter := tui.NewTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	notifier := tui.NewNotifier(cmd.ErrOrStderr())

	ask := func(opts config.PromptOptions) (string, error) {
		v, ok, err := prompter.Prompt(ctx, opts)
		if err != nil || !ok {
			return "", err
		}
		return strings.TrimSpace(v), nil
	}

	apiKey, err := ask(config.PromptOptions{Message: config.PromptAPIKey, Password: true})
	if err != nil {
		return err
	}
	orgID, err := ask(config.PromptOptions{Message: config.PromptOrganizationID})
	if err != nil {
		return err
	}
	if apiKey == "" || orgID == "" {
		notifier.ShowError(ctx, config.MessageConfigurationMissing)
		return config.ErrConfigurationMissing
	}

	if err := a.store.Update(map[string]any{
		config.KeyAPIKey:         apiKey,
		config.KeyOrganizationID: orgID,
	}); err != nil {
		return err
	}
	notifier.ShowInfo("Credentials saved to " + a.store.Path())
	return nil
}

func valueOrMissing(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
