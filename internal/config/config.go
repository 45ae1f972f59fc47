package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Dhanuzh/refactorai/internal/logging"
)

// ---------------------------------------------------------------------------
// Settings keys – the "refactorWithAI" namespace of the host editor
// ---------------------------------------------------------------------------

const (
	Namespace = "refactorWithAI"

	KeyAPIKey         = Namespace + ".apiKey"
	KeyOrganizationID = Namespace + ".organizationId"
	KeyModel          = Namespace + ".MODEL"
	KeyStreaming      = Namespace + ".streaming"
	KeyBaseURL        = Namespace + ".baseURL"
	KeyTimeout        = Namespace + ".timeout"
	KeyLogLevel       = Namespace + ".logLevel"
)

const (
	DefaultModel   = "gpt-3.5-turbo"
	DefaultBaseURL = "https://api.openai.com/v1"

	EnvSettings = "REFACTORAI_SETTINGS" // path to a custom settings file
)

// Settings is the effective configuration of one invocation.
type Settings struct {
	APIKey         string        `json:"apiKey,omitempty"`
	OrganizationID string        `json:"organizationId,omitempty"`
	Model          string        `json:"MODEL"`
	Streaming      bool          `json:"streaming"`
	BaseURL        string        `json:"baseURL"`
	Timeout        time.Duration `json:"timeout"`
	LogLevel       string        `json:"logLevel"`
}

// Credentials returns the credential pair held by s.
func (s Settings) Credentials() Credentials {
	return Credentials{APIKey: s.APIKey, OrganizationID: s.OrganizationID}
}

// Redacted returns a copy safe to print.
func (s Settings) Redacted() Settings {
	s.APIKey = redact(s.APIKey)
	return s
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:3] + "..." + secret[len(secret)-4:]
}

// ---------------------------------------------------------------------------
// Store – effective settings (defaults → file → env) plus persistence
// ---------------------------------------------------------------------------

// Store holds the user-scoped settings file and the effective view over it.
// Viper is not safe for concurrent use, so every access goes through mu.
type Store struct {
	mu   sync.RWMutex
	path string
	v    *viper.Viper
}

// DefaultSettingsPath returns the user-scoped settings file location.
func DefaultSettingsPath() string {
	if p := os.Getenv(EnvSettings); p != "" {
		return p
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "refactorai", "settings.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".refactorai", "settings.json")
	}
	return filepath.Join(home, ".config", "refactorai", "settings.json")
}

// Load reads the settings file at path (DefaultSettingsPath when empty).
// A missing file is not an error: defaults and environment still apply.
func Load(path string) (*Store, error) {
	if path == "" {
		path = DefaultSettingsPath()
	}

	v := viper.New()
	v.SetDefault(KeyModel, DefaultModel)
	v.SetDefault(KeyStreaming, false)
	v.SetDefault(KeyBaseURL, DefaultBaseURL)
	v.SetDefault(KeyTimeout, time.Duration(0))
	v.SetDefault(KeyLogLevel, "info")

	v.SetConfigFile(path)
	v.SetConfigType("json")

	// Environment variables
	_ = v.BindEnv(KeyAPIKey, "REFACTORAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv(KeyOrganizationID, "REFACTORAI_ORGANIZATION_ID", "OPENAI_ORG_ID")
	_ = v.BindEnv(KeyModel, "REFACTORAI_MODEL")
	_ = v.BindEnv(KeyStreaming, "REFACTORAI_STREAMING")
	_ = v.BindEnv(KeyBaseURL, "REFACTORAI_BASE_URL", "OPENAI_BASE_URL")
	_ = v.BindEnv(KeyTimeout, "REFACTORAI_TIMEOUT")
	_ = v.BindEnv(KeyLogLevel, "REFACTORAI_LOG_LEVEL")

	if err := readIfExists(v, path); err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}

	return &Store{path: path, v: v}, nil
}

func readIfExists(v *viper.Viper, path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	return v.ReadInConfig()
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Settings returns a snapshot of the effective settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	model := strings.TrimSpace(s.v.GetString(KeyModel))
	if model == "" {
		model = DefaultModel
	}
	return Settings{
		APIKey:         strings.TrimSpace(s.v.GetString(KeyAPIKey)),
		OrganizationID: strings.TrimSpace(s.v.GetString(KeyOrganizationID)),
		Model:          model,
		Streaming:      s.v.GetBool(KeyStreaming),
		BaseURL:        strings.TrimSpace(s.v.GetString(KeyBaseURL)),
		Timeout:        s.v.GetDuration(KeyTimeout),
		LogLevel:       s.v.GetString(KeyLogLevel),
	}
}

// Update persists values (keyed by the Key* constants) to the settings file
// and reloads the effective view. Only the file contents are written back;
// defaults and environment overrides never leak into the file.
func (s *Store) Update(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file := viper.New()
	file.SetConfigFile(s.path)
	file.SetConfigType("json")
	file.SetConfigPermissions(0600)
	if err := readIfExists(file, s.path); err != nil {
		return fmt.Errorf("read settings %s: %w", s.path, err)
	}
	for k, val := range values {
		file.Set(k, val)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := file.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write settings %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		return fmt.Errorf("chmod settings %s: %w", s.path, err)
	}

	return readIfExists(s.v, s.path)
}

// Reload re-reads the settings file.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readIfExists(s.v, s.path)
}

// Watch reloads the store whenever the settings file changes and calls fn
// with the new snapshot. It returns once the watcher is running; watching
// stops when ctx is done. A file that fails to parse or validate is logged
// and skipped; the previous values stay in effect.
func (s *Store) Watch(ctx context.Context, logger *zap.Logger, fn func(Settings)) error {
	logger = logging.OrNop(logger).With(zap.String("path", s.path))
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Editors replace files by rename, so watch the directory, not the file.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := s.Reload(); err != nil {
					logger.Warn("settings reload failed", zap.Error(err))
					continue
				}
				settings := s.Settings()
				if err := settings.Validate(); err != nil {
					logger.Warn("reloaded settings are invalid", zap.Error(err))
					continue
				}
				if fn != nil {
					fn(settings)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("settings watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
