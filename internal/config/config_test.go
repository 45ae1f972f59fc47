package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// clearEnv blanks every variable Load binds so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"REFACTORAI_API_KEY", "OPENAI_API_KEY",
		"REFACTORAI_ORGANIZATION_ID", "OPENAI_ORG_ID",
		"REFACTORAI_MODEL", "REFACTORAI_STREAMING",
		"REFACTORAI_BASE_URL", "OPENAI_BASE_URL",
		"REFACTORAI_TIMEOUT", "REFACTORAI_LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
}

func writeSettings(t *testing.T, path string, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "missing", "settings.json")

	store, err := Load(path)
	require.NoError(t, err)

	s := store.Settings()
	assert.Equal(t, DefaultModel, s.Model)
	assert.Equal(t, DefaultBaseURL, s.BaseURL)
	assert.False(t, s.Streaming)
	assert.Empty(t, s.APIKey)
	assert.Empty(t, s.OrganizationID)
	assert.Equal(t, path, store.Path())
}

func TestLoadReadsNamespace(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	writeSettings(t, path, `{
  "refactorWithAI": {
    "apiKey": "sk-file",
    "organizationId": "org-file",
    "MODEL": "gpt-4o-mini",
    "streaming": true,
    "timeout": "45s"
  }
}`)

	store, err := Load(path)
	require.NoError(t, err)

	s := store.Settings()
	assert.Equal(t, "sk-file", s.APIKey)
	assert.Equal(t, "org-file", s.OrganizationID)
	assert.Equal(t, "gpt-4o-mini", s.Model)
	assert.True(t, s.Streaming)
	assert.Equal(t, 45*time.Second, s.Timeout)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	writeSettings(t, path, `{"refactorWithAI": {"MODEL": "from-file"}}`)
	t.Setenv("REFACTORAI_MODEL", "from-env")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	store, err := Load(path)
	require.NoError(t, err)

	s := store.Settings()
	assert.Equal(t, "from-env", s.Model)
	assert.Equal(t, "sk-env", s.APIKey)
}

func TestUpdatePersistsOnlyFileValues(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	t.Setenv("REFACTORAI_MODEL", "env-model")

	store, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, store.Update(map[string]any{
		KeyAPIKey:         "sk-new",
		KeyOrganizationID: "org-new",
	}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	ns := raw["refactorwithai"]
	require.NotNil(t, ns)
	assert.Equal(t, "sk-new", ns["apikey"])
	assert.Equal(t, "org-new", ns["organizationid"])
	assert.NotContains(t, ns, "model", "env/default values must not be written back")

	s := store.Settings()
	assert.Equal(t, "sk-new", s.APIKey)
	assert.Equal(t, "env-model", s.Model)
}

func TestClearCredentials(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	writeSettings(t, path, `{"refactorWithAI": {"apiKey": "sk", "organizationId": "org"}}`)

	store, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Clear(store))

	assert.False(t, store.Settings().Credentials().Complete())
}

func TestWatchReloadsOnChange(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	writeSettings(t, path, `{"refactorWithAI": {"MODEL": "one"}}`)

	store, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []string
	require.NoError(t, store.Watch(ctx, nil, func(s Settings) {
		mu.Lock()
		seen = append(seen, s.Model)
		mu.Unlock()
	}))

	writeSettings(t, path, `{"refactorWithAI": {"MODEL": "two"}}`)

	require.Eventually(t, func() bool {
		return store.Settings().Model == "two"
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "two")
}

func TestWatchLogsRejectedReloads(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "settings.json")
	writeSettings(t, path, `{"refactorWithAI": {"MODEL": "one"}}`)

	store, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, logs := observer.New(zap.WarnLevel)
	var mu sync.Mutex
	var seen []string
	require.NoError(t, store.Watch(ctx, zap.New(core), func(s Settings) {
		mu.Lock()
		seen = append(seen, s.Model)
		mu.Unlock()
	}))

	writeSettings(t, path, `{"refactorWithAI": {`)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("settings reload failed").Len() > 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "one", store.Settings().Model)

	writeSettings(t, path, `{"refactorWithAI": {"logLevel": "chatty"}}`)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("reloaded settings are invalid").Len() > 0
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, seen)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{"defaults", Settings{Model: DefaultModel, BaseURL: DefaultBaseURL}, false},
		{"empty model", Settings{BaseURL: DefaultBaseURL}, true},
		{"bad url", Settings{Model: "m", BaseURL: "ftp://x"}, true},
		{"negative timeout", Settings{Model: "m", Timeout: -time.Second}, true},
		{"bad log level", Settings{Model: "m", LogLevel: "chatty"}, true},
		{"partial credentials are fine", Settings{Model: "m", APIKey: "sk"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr {
				var verrs ValidationErrors
				require.ErrorAs(t, err, &verrs)
				assert.NotEmpty(t, verrs)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	s := Settings{APIKey: "sk-1234567890abcd"}.Redacted()
	assert.Equal(t, "sk-...abcd", s.APIKey)
	assert.Equal(t, "****", Settings{APIKey: "short"}.Redacted().APIKey)
	assert.Empty(t, Settings{}.Redacted().APIKey)
}
