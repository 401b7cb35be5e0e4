package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// EnvPath names the environment variable consulted when no path is given.
const EnvPath = "PROPAGENT_CONFIG"

// Env is the process surface the loader reads from. Tests substitute a fake.
type Env interface {
	Getenv(key string) string
	UserHomeDir() (string, error)
	ReadFile(path string) ([]byte, error)
}

type osEnv struct{}

func (osEnv) Getenv(key string) string             { return os.Getenv(key) }
func (osEnv) UserHomeDir() (string, error)         { return os.UserHomeDir() }
func (osEnv) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// Load reads the config file over the defaults from the real environment.
// See LoadEnv.
func Load(path string) (*Config, error) {
	return LoadEnv(osEnv{}, path)
}

// LoadEnv resolves the config file and decodes it over DefaultConfig, so keys
// present in the file win, including explicit zero values.
//
// The file is path when set, else $PROPAGENT_CONFIG, else
// ~/.config/propagent/config.json. Only the home fallback may be absent; a
// file named by the caller or the environment must exist.
func LoadEnv(env Env, path string) (*Config, error) {
	path, required := resolve(env, path)
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := env.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve picks the config path and whether it must exist. An empty path
// means no file could be located at all.
func resolve(env Env, path string) (string, bool) {
	if path != "" {
		return path, true
	}
	if p := env.Getenv(EnvPath); p != "" {
		return p, true
	}
	home, err := env.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, ".config", "propagent", "config.json"), false
}
