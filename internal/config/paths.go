package config

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

const (
	ConfigFile  = "config.yaml"
	StateFile   = "state.yaml"
	EnvFile     = ".env"
	SecretsFile = "secrets.env"
	LedgerFile  = "state.db"
)

// Paths are the files microbs reads and writes for one deployment.
type Paths struct {
	Home    string
	Config  string
	State   string
	Env     string
	Secrets string
	Ledger  string
	Plugins string
	Apps    string
}

// ResolvePaths derives every path from the config directory. When dir is
// empty the current directory is used if it holds config.yaml, otherwise
// ~/.microbs.
func ResolvePaths(dir string) (Paths, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return Paths{}, err
		}
		dir = d
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return Paths{}, err
	}
	home, err := filepath.Abs(expanded)
	if err != nil {
		return Paths{}, err
	}
	return Paths{
		Home:    home,
		Config:  filepath.Join(home, ConfigFile),
		State:   filepath.Join(home, StateFile),
		Env:     filepath.Join(home, EnvFile),
		Secrets: filepath.Join(home, SecretsFile),
		Ledger:  filepath.Join(home, LedgerFile),
		Plugins: filepath.Join(home, "plugins"),
		Apps:    filepath.Join(home, "apps"),
	}, nil
}

// DefaultDir is $CWD when it holds config.yaml, otherwise ~/.microbs.
func DefaultDir() (string, error) {
	if cwd, err := os.Getwd(); err == nil {
		if _, err := os.Stat(filepath.Join(cwd, ConfigFile)); err == nil {
			return cwd, nil
		}
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".microbs"), nil
}
