package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists the refresh token between runs.
type Store struct {
	path string
}

// NewStore returns a Store backed by path. An empty path disables persistence.
func NewStore(path string) *Store {
	return &Store{path: path}
}

type storedToken struct {
	RefreshToken string `json:"refresh_token"`
}

// Load returns the stored refresh token, or "" when none is stored.
func (s *Store) Load() (string, error) {
	if s == nil || s.path == "" {
		return "", nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return "", fmt.Errorf("parse token file %s: %w", s.path, err)
	}
	return st.RefreshToken, nil
}

// Save writes the refresh token via temp file and rename so a crash never
// leaves a truncated token file behind.
func (s *Store) Save(refreshToken string) error {
	if s == nil || s.path == "" || refreshToken == "" {
		return nil
	}
	data, err := json.Marshal(storedToken{RefreshToken: refreshToken})
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename token file: %w", err)
	}
	return nil
}
