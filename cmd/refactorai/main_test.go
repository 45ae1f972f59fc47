package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliResult struct {
	out    string
	errOut string
	err    error
}

func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	var out, errOut bytes.Buffer
	a := &app{in: strings.NewReader(stdin), out: &out, errOut: &errOut}
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return cliResult{out: out.String(), errOut: errOut.String(), err: err}
}

func writeSettings(t *testing.T, values map[string]any) string {
	t.Helper()
	for _, env := range []string{"OPENAI_API_KEY", "OPENAI_ORG_ID", "REFACTORAI_API_KEY", "REFACTORAI_ORGANIZATION_ID", "REFACTORAI_BASE_URL", "OPENAI_BASE_URL", "REFACTORAI_MODEL", "REFACTORAI_STREAMING"} {
		t.Setenv(env, "")
	}
	path := filepath.Join(t.TempDir(), "settings.json")
	data, err := json.Marshal(map[string]any{"refactorWithAI": values})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func writeSource(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
	return path
}

func fakeOpenAI(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] == true {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, part := range strings.SplitAfter(content, " ") {
				data, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"content": part}}}})
				_, _ = io.WriteString(w, "data: "+string(data)+"\n\n")
			}
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		data, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
		})
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateDryRun(t *testing.T) {
	srv := fakeOpenAI(t, "y = 2")
	settings := writeSettings(t, map[string]any{"apiKey": "sk-test", "organizationId": "org", "baseURL": srv.URL + "/v1"})
	file := writeSource(t, "x = 1")

	res := runCLI(t, "", "--settings", settings, "--log-level", "error",
		"generate", "--file", file, "--selection", "0:0-0:5", "--dry-run")
	require.NoError(t, res.err)
	assert.Equal(t, "x = 1\ny = 2", res.out)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "x = 1", string(data), "dry run leaves the file alone")
}

func TestSuggestStreamingSavesFile(t *testing.T) {
	srv := fakeOpenAI(t, "func add(a, b int) int { return a + b }")
	settings := writeSettings(t, map[string]any{"apiKey": "sk-test", "organizationId": "org", "baseURL": srv.URL + "/v1"})
	file := writeSource(t, "package x\nfunc add(a int, b int) int {\n\treturn a+b\n}\n")

	res := runCLI(t, "", "--settings", settings, "--log-level", "error",
		"suggest", "-f", file, "-s", "1:0-3:1", "--stream")
	require.NoError(t, res.err)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "package x\nfunc add(a, b int) int { return a + b }\n", string(data))
	assert.Contains(t, res.errOut, "refactor applied to")
}

func TestGenerateWithoutCredentials(t *testing.T) {
	srv := fakeOpenAI(t, "unused")
	settings := writeSettings(t, map[string]any{"baseURL": srv.URL + "/v1"})
	file := writeSource(t, "x")

	res := runCLI(t, "", "--settings", settings, "--log-level", "error",
		"generate", "--file", file, "--selection", "0:0-0:1")
	require.Error(t, res.err)
	assert.Contains(t, res.errOut, "API key and Organization ID is required")
}

func TestGeneratePromptsAndPersistsCredentials(t *testing.T) {
	srv := fakeOpenAI(t, "y")
	settings := writeSettings(t, map[string]any{"baseURL": srv.URL + "/v1"})
	file := writeSource(t, "x")

	res := runCLI(t, "sk-typed\norg-typed\n", "--settings", settings, "--log-level", "error",
		"generate", "--file", file, "--selection", "0:0-0:1", "--dry-run")
	require.NoError(t, res.err)
	assert.Equal(t, "x\ny", res.out)

	status := runCLI(t, "", "--settings", settings, "auth", "status")
	require.NoError(t, status.err)
	assert.Contains(t, status.out, "org-typed")
	assert.Contains(t, status.out, "active")
}

func TestTransportFailureShowsFriendlyNotice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	t.Cleanup(srv.Close)
	settings := writeSettings(t, map[string]any{"apiKey": "sk-bad", "organizationId": "org", "baseURL": srv.URL + "/v1"})
	file := writeSource(t, "x")

	res := runCLI(t, "", "--settings", settings, "--log-level", "error",
		"generate", "--file", file, "--selection", "0:0-0:1")
	require.Error(t, res.err)
	assert.Contains(t, res.errOut, "Authentication Failed")
	assert.Contains(t, res.errOut, "refactorai auth login")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestInvalidSelection(t *testing.T) {
	settings := writeSettings(t, map[string]any{})
	file := writeSource(t, "x")

	res := runCLI(t, "", "--settings", settings, "generate", "--file", file, "--selection", "nope")
	assert.Error(t, res.err)
}

func TestAuthLoginLogout(t *testing.T) {
	settings := writeSettings(t, map[string]any{"MODEL": "gpt-4o"})

	res := runCLI(t, "sk-0123456789\norg-1\n", "--settings", settings, "auth", "login")
	require.NoError(t, res.err)

	show := runCLI(t, "", "--settings", settings, "config", "show")
	require.NoError(t, show.err)
	assert.Contains(t, show.out, `"organizationId": "org-1"`)
	assert.Contains(t, show.out, `"MODEL": "gpt-4o"`)
	assert.NotContains(t, show.out, "sk-0123456789")

	require.NoError(t, runCLI(t, "", "--settings", settings, "auth", "logout").err)
	status := runCLI(t, "", "--settings", settings, "auth", "status")
	assert.Contains(t, status.out, "not configured")
}

func TestConfigPathAndVersion(t *testing.T) {
	settings := writeSettings(t, map[string]any{})

	res := runCLI(t, "", "--settings", settings, "config", "path")
	require.NoError(t, res.err)
	assert.Equal(t, settings+"\n", res.out)

	res = runCLI(t, "", "--settings", settings, "version")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "refactorai version "+version)
}
