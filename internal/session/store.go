package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	dirMode  = 0o700
	fileMode = 0o600
)

// Store owns the bearer credential. It keeps the value in memory and mirrors
// it to a file so it survives restarts. An empty path gives a memory-only store.
type Store struct {
	mu     sync.RWMutex
	path   string
	token  string
	logger *zap.Logger
}

func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		path:   strings.TrimSpace(path),
		logger: logger,
	}
}

// DefaultPath returns the token file location under the user config directory.
func DefaultPath(app string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, app, "token")
}

// Load reads a previously persisted credential. It never fails: any problem
// with the file means there is no credential.
func (s *Store) Load() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return s.token, s.token != ""
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Debug("no stored session", zap.String("path", s.path))
		s.token = ""
		return "", false
	case err != nil:
		s.logger.Warn("reading stored session", zap.String("path", s.path), zap.Error(err))
		s.token = ""
		return "", false
	}

	s.token = strings.TrimSpace(string(data))
	return s.token, s.token != ""
}

// Set stores the credential, replacing any previous one.
func (s *Store) Set(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("credential must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	if s.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token), fileMode); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}

	return nil
}

// Clear drops the credential from memory and disk. Calling it twice is fine.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	if s.path == "" {
		return
	}

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("removing stored session", zap.String("path", s.path), zap.Error(err))
	}
}

func (s *Store) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token, s.token != ""
}
