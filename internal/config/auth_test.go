package config

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPrompter answers prompts from a fixed script.
type scriptedPrompter struct {
	answers []answer
	asked   []PromptOptions
}

type answer struct {
	value string
	ok    bool
	err   error
}

func (p *scriptedPrompter) Prompt(_ context.Context, opts PromptOptions) (string, bool, error) {
	p.asked = append(p.asked, opts)
	if len(p.answers) == 0 {
		return "", false, nil
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a.value, a.ok, a.err
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) ShowError(_ context.Context, message string) {
	n.messages = append(n.messages, message)
}

func newTestStore(t *testing.T, body string) *Store {
	t.Helper()
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	if body != "" {
		writeSettings(t, path, body)
	}
	store, err := Load(path)
	require.NoError(t, err)
	return store
}

func TestResolveUsesStoredCredentials(t *testing.T) {
	store := newTestStore(t, `{"refactorWithAI": {"apiKey": "sk", "organizationId": "org"}}`)
	prompter := &scriptedPrompter{}

	p := NewCredentialProvider(store, prompter, nil, nil)
	creds, err := p.Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Credentials{APIKey: "sk", OrganizationID: "org"}, creds)
	assert.Empty(t, prompter.asked, "no prompt when both values are present")
}

func TestResolvePromptsAndPersists(t *testing.T) {
	store := newTestStore(t, "")
	prompter := &scriptedPrompter{answers: []answer{
		{value: " sk-typed ", ok: true},
		{value: "org-typed", ok: true},
	}}

	p := NewCredentialProvider(store, prompter, nil, nil)
	creds, err := p.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-typed", creds.APIKey)
	assert.Equal(t, "org-typed", creds.OrganizationID)

	require.Len(t, prompter.asked, 2)
	assert.Equal(t, PromptAPIKey, prompter.asked[0].Message)
	assert.True(t, prompter.asked[0].Password)
	assert.Equal(t, PromptOrganizationID, prompter.asked[1].Message)

	// Persisted: a fresh store sees them without prompting.
	reloaded, err := Load(store.Path())
	require.NoError(t, err)
	assert.Equal(t, creds, reloaded.Settings().Credentials())
}

func TestResolvePartialCredentialsPromptsForBoth(t *testing.T) {
	store := newTestStore(t, `{"refactorWithAI": {"apiKey": "sk-old"}}`)
	prompter := &scriptedPrompter{answers: []answer{
		{value: "sk-new", ok: true},
		{value: "org-new", ok: true},
	}}

	p := NewCredentialProvider(store, prompter, nil, nil)
	creds, err := p.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "sk-new", OrganizationID: "org-new"}, creds)
	assert.Len(t, prompter.asked, 2)
}

func TestResolveCancelledFailsWithConfigurationMissing(t *testing.T) {
	store := newTestStore(t, "")
	prompter := &scriptedPrompter{answers: []answer{
		{ok: false},
		{value: "org", ok: true},
	}}
	notifier := &recordingNotifier{}

	p := NewCredentialProvider(store, prompter, notifier, nil)
	_, err := p.Resolve(context.Background())
	require.ErrorIs(t, err, ErrConfigurationMissing)

	assert.Equal(t, []string{MessageConfigurationMissing}, notifier.messages)
	assert.False(t, store.Settings().Credentials().Complete(), "nothing is persisted")
}

func TestResolveEmptyValueFails(t *testing.T) {
	store := newTestStore(t, "")
	prompter := &scriptedPrompter{answers: []answer{
		{value: "sk", ok: true},
		{value: "   ", ok: true},
	}}

	p := NewCredentialProvider(store, prompter, &recordingNotifier{}, nil)
	_, err := p.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestResolvePromptErrorCountsAsDecline(t *testing.T) {
	store := newTestStore(t, "")
	prompter := &scriptedPrompter{answers: []answer{
		{err: errors.New("no tty")},
		{err: errors.New("no tty")},
	}}

	p := NewCredentialProvider(store, prompter, nil, nil)
	_, err := p.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestResolveWithoutPrompter(t *testing.T) {
	store := newTestStore(t, "")
	notifier := &recordingNotifier{}

	p := NewCredentialProvider(store, nil, notifier, nil)
	_, err := p.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrConfigurationMissing)
	assert.Len(t, notifier.messages, 1)
}

func TestResolveContextCancelled(t *testing.T) {
	store := newTestStore(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewCredentialProvider(store, &scriptedPrompter{}, nil, nil)
	_, err := p.Resolve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveCachesUntilInvalidated(t *testing.T) {
	store := newTestStore(t, `{"refactorWithAI": {"apiKey": "sk-1", "organizationId": "org"}}`)
	p := NewCredentialProvider(store, &scriptedPrompter{}, nil, nil)

	first, err := p.Resolve(context.Background())
	require.NoError(t, err)

	require.NoError(t, store.Update(map[string]any{KeyAPIKey: "sk-2"}))
	cached, err := p.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	p.Invalidate()
	fresh, err := p.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-2", fresh.APIKey)
}

// blockingPrompter holds every prompt until release is closed.
type blockingPrompter struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingPrompter() *blockingPrompter {
	return &blockingPrompter{entered: make(chan struct{}, 4), release: make(chan struct{})}
}

func (p *blockingPrompter) Prompt(ctx context.Context, opts PromptOptions) (string, bool, error) {
	p.entered <- struct{}{}
	select {
	case <-p.release:
		return "value", true, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func TestResolveWaitingCallerHonoursCancel(t *testing.T) {
	store := newTestStore(t, "")
	prompter := newBlockingPrompter()
	p := NewCredentialProvider(store, prompter, nil, nil)

	first := make(chan error, 1)
	go func() {
		_, err := p.Resolve(context.Background())
		first <- err
	}()
	select {
	case <-prompter.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("first Resolve never prompted")
	}

	// An already-cancelled caller returns at once.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Resolve(cancelled)
	assert.ErrorIs(t, err, context.Canceled)

	// A caller cancelled while waiting returns too.
	waiting, cancelWaiting := context.WithCancel(context.Background())
	second := make(chan error, 1)
	go func() {
		_, err := p.Resolve(waiting)
		second <- err
	}()
	cancelWaiting()
	select {
	case err := <-second:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("waiting Resolve ignored cancellation")
	}

	close(prompter.release)
	require.NoError(t, <-first)
}

func TestResolveWaiterSharesPromptedCredentials(t *testing.T) {
	store := newTestStore(t, "")
	prompter := newBlockingPrompter()
	p := NewCredentialProvider(store, prompter, nil, nil)

	results := make(chan Credentials, 2)
	for i := 0; i < 2; i++ {
		go func() {
			creds, err := p.Resolve(context.Background())
			assert.NoError(t, err)
			results <- creds
		}()
	}
	<-prompter.entered
	close(prompter.release)

	want := Credentials{APIKey: "value", OrganizationID: "value"}
	assert.Equal(t, want, <-results)
	assert.Equal(t, want, <-results)
	assert.Len(t, prompter.entered, 1, "only the first caller is prompted, once per value")
}
