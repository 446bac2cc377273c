package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	AppName        = "gatekeyctl"
	ConfigFileName = "config"
	ConfigFileType = "yaml"
)

// Context is a named server endpoint the CLI can talk to.
type Context struct {
	Name           string `mapstructure:"name"            yaml:"name"`
	ServerEndpoint string `mapstructure:"server_endpoint" yaml:"server_endpoint"`
}

// CLIConfig is the on-disk CLI state, kubeconfig style: a set of named
// contexts plus the name of the active one.
type CLIConfig struct {
	CurrentContext string              `mapstructure:"current_context" yaml:"current_context"`
	Contexts       map[string]*Context `mapstructure:"contexts"        yaml:"contexts"`
}

var (
	GlobalConfig *CLIConfig
	CfgFile      string
)

// InitConfig loads the CLI config file. A missing file is fine; the first
// set-context call creates it.
func InitConfig() error {
	v := viper.New()
	if CfgFile != "" {
		v.SetConfigFile(CfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath := filepath.Join(home, "."+AppName)
		v.AddConfigPath(configPath)
		v.SetConfigName(ConfigFileName)
		v.SetConfigType(ConfigFileType)
		CfgFile = filepath.Join(configPath, ConfigFileName+"."+ConfigFileType)
	}

	GlobalConfig = &CLIConfig{Contexts: make(map[string]*Context)}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading config file %s: %w", CfgFile, err)
	}
	CfgFile = v.ConfigFileUsed()

	if err := v.Unmarshal(GlobalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if GlobalConfig.Contexts == nil {
		GlobalConfig.Contexts = make(map[string]*Context)
	}

	return nil
}

// SaveConfig writes GlobalConfig back to the config file.
func SaveConfig() error {
	if CfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		CfgFile = filepath.Join(home, "."+AppName, ConfigFileName+"."+ConfigFileType)
	}

	configDir := filepath.Dir(CfgFile)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	out, err := yaml.Marshal(GlobalConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(CfgFile, out, 0o600); err != nil {
		return fmt.Errorf("failed to save config to %s: %w", CfgFile, err)
	}

	return nil
}

// GetCurrentContext returns the active context configuration.
func GetCurrentContext() (*Context, error) {
	if GlobalConfig == nil || GlobalConfig.Contexts == nil {
		return nil, errors.New("config not initialized")
	}
	if GlobalConfig.CurrentContext == "" {
		return nil, errors.New("no current context set, use 'gatekeyctl config set-context <name> --server <url>'")
	}
	ctx, exists := GlobalConfig.Contexts[GlobalConfig.CurrentContext]
	if !exists {
		return nil, fmt.Errorf("current context %q not found in configuration", GlobalConfig.CurrentContext)
	}
	return ctx, nil
}
