package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Dhanuzh/refactorai/internal/logging"
)

// ErrConfigurationMissing is returned when credentials are absent and the
// user declined to supply them.
var ErrConfigurationMissing = errors.New("configuration missing: API key and organization ID are required")

const (
	PromptAPIKey         = "Please enter your OpenAI API key:"
	PromptOrganizationID = "Please enter your OpenAI Organization ID:"

	MessageConfigurationMissing = "API key and Organization ID is required to use the Refactor with AI extension."
)

// Credentials is the API key and organization pair sent with every request.
type Credentials struct {
	APIKey         string
	OrganizationID string
}

// Complete reports whether both halves are present.
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.OrganizationID != ""
}

// PromptOptions describes one blocking text-input prompt.
type PromptOptions struct {
	Message  string
	Password bool // hide the typed value
}

// Prompter shows a text-input prompt. ok is false when the user cancelled.
type Prompter interface {
	Prompt(ctx context.Context, opts PromptOptions) (value string, ok bool, err error)
}

// Notifier shows a modal error message to the user.
type Notifier interface {
	ShowError(ctx context.Context, message string)
}

// CredentialStore is the subset of *Store the provider needs.
type CredentialStore interface {
	Settings() Settings
	Update(values map[string]any) error
}

// CredentialProvider resolves credentials from settings, prompting and
// persisting them when they are incomplete. A resolved pair is cached until
// Invalidate is called.
type CredentialProvider struct {
	store    CredentialStore
	prompter Prompter
	notifier Notifier
	logger   *zap.Logger

	// prompting holds one token while a Resolve reads or asks for
	// credentials; waiters give up when their context ends.
	prompting chan struct{}

	mu     sync.Mutex
	cached *Credentials
}

// NewCredentialProvider creates a provider. notifier and logger may be nil.
func NewCredentialProvider(store CredentialStore, prompter Prompter, notifier Notifier, logger *zap.Logger) *CredentialProvider {
	return &CredentialProvider{
		store:     store,
		prompter:  prompter,
		notifier:  notifier,
		logger:    logging.OrNop(logger),
		prompting: make(chan struct{}, 1),
	}
}

// Resolve returns the credentials, prompting for both values when either is
// missing. A cancelled or empty answer fails with ErrConfigurationMissing
// after the error message has been shown; there is no second attempt.
// Concurrent callers wait for an in-progress prompt, or for ctx to end.
func (p *CredentialProvider) Resolve(ctx context.Context) (Credentials, error) {
	if creds, ok := p.cachedCredentials(); ok {
		return creds, nil
	}

	select {
	case p.prompting <- struct{}{}:
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	}
	defer func() { <-p.prompting }()

	// The caller we waited on may have resolved them.
	if creds, ok := p.cachedCredentials(); ok {
		return creds, nil
	}

	creds := p.store.Settings().Credentials()
	if creds.Complete() {
		p.setCached(creds)
		return creds, nil
	}

	if p.prompter == nil {
		p.showError(ctx)
		return Credentials{}, fmt.Errorf("%w: no interactive prompt available", ErrConfigurationMissing)
	}

	p.logger.Debug("credentials incomplete, prompting",
		zap.Bool("has_api_key", creds.APIKey != ""),
		zap.Bool("has_organization_id", creds.OrganizationID != ""))

	apiKey, err := p.ask(ctx, PromptOptions{Message: PromptAPIKey, Password: true})
	if err != nil {
		return Credentials{}, err
	}
	orgID, err := p.ask(ctx, PromptOptions{Message: PromptOrganizationID})
	if err != nil {
		return Credentials{}, err
	}

	if apiKey == "" || orgID == "" {
		p.showError(ctx)
		return Credentials{}, ErrConfigurationMissing
	}

	if err := p.store.Update(map[string]any{
		KeyAPIKey:         apiKey,
		KeyOrganizationID: orgID,
	}); err != nil {
		return Credentials{}, fmt.Errorf("save credentials: %w", err)
	}

	creds = Credentials{APIKey: apiKey, OrganizationID: orgID}
	p.setCached(creds)
	p.logger.Info("credentials saved to user settings")
	return creds, nil
}

func (p *CredentialProvider) cachedCredentials() (Credentials, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil {
		return Credentials{}, false
	}
	return *p.cached, true
}

func (p *CredentialProvider) setCached(creds Credentials) {
	p.mu.Lock()
	p.cached = &creds
	p.mu.Unlock()
}

// ask returns "" for a cancelled or failed prompt. Only context
// cancellation is reported as an error.
func (p *CredentialProvider) ask(ctx context.Context, opts PromptOptions) (string, error) {
	value, ok, err := p.prompter.Prompt(ctx, opts)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		p.logger.Warn("prompt failed", zap.String("prompt", opts.Message), zap.Error(err))
		return "", nil
	}
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(value), nil
}

func (p *CredentialProvider) showError(ctx context.Context) {
	if p.notifier != nil {
		p.notifier.ShowError(ctx, MessageConfigurationMissing)
	}
}

// Invalidate drops the cached credentials so the next Resolve re-reads
// the settings.
func (p *CredentialProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// Clear removes persisted credentials from the settings file.
func Clear(store CredentialStore) error {
	return store.Update(map[string]any{
		KeyAPIKey:         "",
		KeyOrganizationID: "",
	})
}
