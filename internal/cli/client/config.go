package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// GlobalConfig is the per-user CLI state stored in config.json
type GlobalConfig struct {
	APIURL    string `json:"api_url,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ErrNoSession is returned when no session was selected anywhere.
var ErrNoSession = errors.New("no session selected (run 'pdfqa session new' or pass --session)")

var (
	getConfigDirFunc  = defaultGetConfigDir
	getConfigPathFunc = func() (string, error) {
		dir, err := getConfigDirFunc()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "config.json"), nil
	}
)

func defaultGetConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(base, "pdfqa"), nil
}

// GetConfigDir is $XDG_CONFIG_HOME/pdfqa or the platform equivalent.
func GetConfigDir() (string, error) {
	return getConfigDirFunc()
}

func GetConfigPath() (string, error) {
	return getConfigPathFunc()
}

// LoadGlobalConfig returns nil and no error when nothing was saved yet.
func LoadGlobalConfig() (*GlobalConfig, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &GlobalConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// SaveGlobalConfig replaces config.json through a temp file so a crash
// never leaves half a file behind. The file is private to the user.
func SaveGlobalConfig(cfg *GlobalConfig) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DeleteGlobalConfig forgets the stored URL and session. Deleting a missing
// file is not an error.
func DeleteGlobalConfig() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}
	return nil
}

// updateGlobalConfig loads the config (or starts an empty one), applies fn and saves it.
func updateGlobalConfig(fn func(cfg *GlobalConfig)) error {
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = &GlobalConfig{}
	}
	fn(cfg)
	return SaveGlobalConfig(cfg)
}

// SetCurrentSession remembers id as the session used by later commands.
func SetCurrentSession(id string) error {
	return updateGlobalConfig(func(cfg *GlobalConfig) { cfg.SessionID = id })
}

// ClearCurrentSession forgets the current session if it is id.
func ClearCurrentSession(id string) error {
	cfg, err := LoadGlobalConfig()
	if err != nil || cfg == nil || cfg.SessionID != id {
		return err
	}
	cfg.SessionID = ""
	return SaveGlobalConfig(cfg)
}

// ResolveSessionID picks the session with cascade: flag → env → global config
func ResolveSessionID(cmd *cobra.Command) (string, error) {
	if cmd != nil {
		if id, err := cmd.Flags().GetString("session"); err == nil && id != "" {
			return id, nil
		}
	}

	if id := os.Getenv(envSessionID); id != "" {
		return id, nil
	}

	cfg, err := LoadGlobalConfig()
	if err != nil {
		return "", err
	}
	if cfg != nil && cfg.SessionID != "" {
		return cfg.SessionID, nil
	}

	return "", ErrNoSession
}
