package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/bhm-spectra/specviewer/internal/config"
)

const defaultPath = "authentication.txt"

// ErrPathEmpty is returned when no credentials path is configured.
var ErrPathEmpty = errors.New("credentials path cannot be empty")

// Config holds credentials loading settings.
type Config struct {
	Path   string // SPECVIEWER_CREDENTIALS_PATH
	Prompt bool   // SPECVIEWER_CREDENTIALS_PROMPT
	Watch  bool   // SPECVIEWER_CREDENTIALS_WATCH
}

// LoadConfig loads credentials settings from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		Path:   config.GetEnvStr("SPECVIEWER_CREDENTIALS_PATH", defaultPath),
		Prompt: config.GetEnvBool("SPECVIEWER_CREDENTIALS_PROMPT", true),
		Watch:  config.GetEnvBool("SPECVIEWER_CREDENTIALS_WATCH", true),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return ErrPathEmpty
	}

	return nil
}

// Store holds the current credentials and swaps them atomically on reload.
//
// Readers never observe a partially updated value.
type Store struct {
	path    string
	current atomic.Pointer[Credentials]
	logger  *slog.Logger
}

// NewStore wraps fixed credentials. Used by tests and by callers that manage the file themselves.
func NewStore(creds Credentials, logger *slog.Logger) *Store {
	s := &Store{logger: logger}
	s.current.Store(&creds)

	return s
}

// Load reads credentials from cfg.Path. When the file is unusable and
// prompting is enabled, it prompts on in/out and persists the answers.
func Load(cfg *Config, in io.Reader, out io.Writer, logger *slog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{path: cfg.Path, logger: logger}

	logger.Info("Reading credentials file", slog.String("path", cfg.Path))

	creds, err := ReadFile(cfg.Path)
	if err == nil {
		s.current.Store(&creds)

		return s, nil
	}

	logger.Warn("Credentials file not provided or incomplete",
		slog.String("path", cfg.Path),
		slog.String("error", err.Error()),
	)

	if !cfg.Prompt {
		return nil, fmt.Errorf("%w: %w", ErrPromptDisabled, err)
	}

	creds, err = Prompt(in, out)
	if err != nil {
		return nil, fmt.Errorf("failed to prompt for credentials: %w", err)
	}

	if err := WriteFile(cfg.Path, creds); err != nil {
		// The prompted values are still usable for this process.
		logger.Error("Failed to persist credentials",
			slog.String("path", cfg.Path),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("Credentials persisted", slog.String("path", cfg.Path))
	}

	s.current.Store(&creds)

	return s, nil
}

// Current returns the active credentials.
func (s *Store) Current() Credentials {
	if creds := s.current.Load(); creds != nil {
		return *creds
	}

	return Credentials{}
}

// BasicAuth returns the username and password for HTTP basic auth.
func (s *Store) BasicAuth() (string, string, bool) {
	creds := s.Current()

	return creds.Username, creds.Password, creds.Complete()
}

// Reload re-reads the credentials file. On failure the previous value is kept.
func (s *Store) Reload() error {
	if s.path == "" {
		return ErrPathEmpty
	}

	creds, err := ReadFile(s.path)
	if err != nil {
		return err
	}

	s.current.Store(&creds)
	s.logger.Info("Credentials reloaded", slog.String("path", s.path))

	return nil
}

// Watch reloads credentials whenever the file is written or replaced. It blocks
// until ctx is done. The parent directory is watched so that editors which
// replace the file by rename are picked up.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return ErrPathEmpty
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create credentials watcher: %w", err)
	}

	defer func() {
		_ = watcher.Close()
	}()

	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch credentials directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			s.handleEvent(target, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			s.logger.Warn("Credentials watcher error", slog.String("error", err.Error()))
		}
	}
}

func (s *Store) handleEvent(target string, event fsnotify.Event) {
	if filepath.Clean(event.Name) != target {
		return
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	if err := s.Reload(); err != nil {
		s.logger.Warn("Failed to reload credentials, keeping previous value",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
	}
}
