package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

const (
	keyBackendURL = "backend_url"
	configName    = ".zvctl"
)

// ViperStorage keeps credentials in the CLI's config file, one key per slot.
type ViperStorage struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
}

// OpenConfig loads the config file at path, or ~/.zvctl.yaml when path is empty. A
// missing file is not an error; it is created on the first write.
func OpenConfig(path string) (*viper.Viper, string, error) {
	v := viper.New()
	v.SetEnvPrefix("ZVCTL")
	v.AutomaticEnv()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, "", err
		}
		path = filepath.Join(home, configName+".yaml")
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, "", err
		}
	}
	return v, path, nil
}

func NewViperStorage(v *viper.Viper, path string) *ViperStorage {
	return &ViperStorage{v: v, path: path}
}

func (s *ViperStorage) Load(_ context.Context, slot string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetString(slot), nil
}

func (s *ViperStorage) Save(_ context.Context, slot, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(slot, token)
}

// Delete blanks the slot; viper cannot remove a key once set.
func (s *ViperStorage) Delete(_ context.Context, slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.v.GetString(slot) == "" && !s.v.InConfig(slot) {
		return nil
	}
	return s.writeLocked(slot, "")
}

func (s *ViperStorage) writeLocked(key, value string) error {
	previous := s.v.GetString(key)
	s.v.Set(key, value)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		s.v.Set(key, previous)
		return err
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		s.v.Set(key, previous)
		return err
	}
	return os.Chmod(s.path, 0o600)
}

// SetBackendURL remembers the backend used at login.
func (s *ViperStorage) SetBackendURL(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(keyBackendURL, url)
}
