package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"panelauth/pkg/logging"
)

const (
	userConfigDir  = ".config/panelauth"
	configFileName = "config.yaml"
)

// Environment variables that override file values. The client secret has
// no file counterpart on purpose.
const (
	EnvClientID     = "PANELAUTH_CLIENT_ID"
	EnvAuthBaseURL  = "PANELAUTH_AUTH_BASE_URL"
	EnvClientSecret = "PANELAUTH_CLIENT_SECRET"
)

// GetDefaultConfigPathOrPanic returns the user-level config directory.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}
	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads config.yaml from the given directory, starting from
// defaults and applying environment overrides last. A missing file is not
// an error; defaults apply.
func LoadConfig(configPath string) (PanelConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			applyEnvOverrides(&config)
			return config, nil
		}
		return PanelConfig{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return PanelConfig{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)

	applyEnvOverrides(&config)
	return config, nil
}

func applyEnvOverrides(config *PanelConfig) {
	if v := os.Getenv(EnvClientID); v != "" {
		config.OAuth.ClientID = v
	}
	if v := os.Getenv(EnvAuthBaseURL); v != "" {
		config.OAuth.AuthBaseURL = v
	}
}

// ClientSecretFromEnv returns the delegated-exchange client secret, empty
// when unset.
func ClientSecretFromEnv() string {
	return os.Getenv(EnvClientSecret)
}
