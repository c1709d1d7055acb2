package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/playwright-community/playwright-go"
)

// Store persists browser cookies per service as JSON files, so a login
// survives process restarts. Saving is best-effort: a failed write is logged
// and the run continues with a fresh login next time.
type Store struct {
	dir    string
	logger *slog.Logger
}

func NewStore(dir string) *Store {
	return &Store{
		dir:    dir,
		logger: slog.Default().With("component", "session"),
	}
}

func (s *Store) path(service string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_session.json", service))
}

// Exists reports whether a saved session file is present for the service.
func (s *Store) Exists(service string) bool {
	info, err := os.Stat(s.path(service))
	return err == nil && !info.IsDir()
}

// Save writes the cookies to disk. Failures are logged, never returned.
func (s *Store) Save(service string, cookies []playwright.Cookie) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Warn("failed to create session directory", "dir", s.dir, "error", err)
		return
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		s.logger.Warn("failed to encode session", "service", service, "error", err)
		return
	}

	path := s.path(service)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		s.logger.Warn("failed to write session file", "service", service, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		s.logger.Warn("failed to finalize session file", "service", service, "error", err)
		return
	}

	s.logger.Info("session saved", "service", service, "cookies", len(cookies))
}

// Load reads saved cookies for the service. Missing or unreadable files
// behave as "no session": the caller falls back to a fresh login.
func (s *Store) Load(service string) []playwright.Cookie {
	data, err := os.ReadFile(s.path(service))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read session file", "service", service, "error", err)
		}
		return nil
	}

	var cookies []playwright.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		s.logger.Warn("session file is corrupt, ignoring", "service", service, "error", err)
		return nil
	}

	s.logger.Info("session loaded", "service", service, "cookies", len(cookies))
	return cookies
}

// Delete removes the saved session for the service.
func (s *Store) Delete(service string) {
	if err := os.Remove(s.path(service)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to delete session file", "service", service, "error", err)
		return
	}
	s.logger.Info("session deleted", "service", service)
}
