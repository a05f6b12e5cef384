package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "reflink.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/reflink"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvPrefix prefixes every environment override
	EnvPrefix = "REFLINK_"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger

	// HomeDir and WorkDir override the user home and the starting
	// directory of the project config search. Empty means the process
	// values.
	HomeDir string
	WorkDir string

	// Getenv reads environment overrides; nil means os.Getenv.
	Getenv func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/reflink/config.yaml)
// 3. Project config (reflink.yaml in current or parent directories), or
//    explicitPath when it is not empty
// 4. .env file in the working directory
// 5. REFLINK_* environment variables
func (l *Loader) Load(explicitPath string) (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfigPath != "" {
		if userConfig, err := LoadFromFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	if explicitPath != "" {
		explicit, err := LoadFromFile(explicitPath)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded explicit config", slog.String("path", explicitPath))
		config.Merge(explicit)
	} else if projectConfigPath := l.findProjectConfig(); projectConfigPath != "" {
		if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	envFile := filepath.Join(l.workDir(), ".env")
	if err := godotenv.Load(envFile); err == nil {
		l.logger.Debug("Loaded .env file", slog.String("path", envFile))
	} else if !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("Failed to load .env file", slog.String("path", envFile), slog.String("error", err.Error()))
	}

	if err := l.applyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() (string, error) {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return "", fmt.Errorf("cannot determine home directory")
	}

	if _, err := os.Stat(userConfigPath); err == nil {
		return userConfigPath, nil
	}

	if err := DefaultConfig().SaveToFile(userConfigPath); err != nil {
		return "", err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return userConfigPath, nil
}

func (l *Loader) getenv(key string) string {
	if l.Getenv != nil {
		return l.Getenv(key)
	}
	return os.Getenv(key)
}

// applyEnv overlays REFLINK_* variables onto config.
func (l *Loader) applyEnv(config *Config) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(l.getenv(EnvPrefix + name)); v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v := strings.TrimSpace(l.getenv(EnvPrefix + name)); v != "" {
			*dst = splitList(v)
		}
	}

	str("BASE_URL", &config.Link.BaseURL)
	str("DEFAULT_VERSION", &config.Link.DefaultVersion)
	list("EXCLUDE", &config.Document.Exclude)
	str("INDEX_PATH", &config.Index.Path)
	list("ALLOWED_ORIGINS", &config.Server.AllowedOrigins)
	str("LOG_LEVEL", &config.Log.Level)
	str("LOG_FORMAT", &config.Log.Format)

	for name, dst := range map[string]*int{
		"PORT":       &config.Server.Port,
		"RATE_LIMIT": &config.Server.RateLimit,
	} {
		if v := strings.TrimSpace(l.getenv(EnvPrefix + name)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}
	if v := strings.TrimSpace(l.getenv(EnvPrefix + "WATCH_DEBOUNCE")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sWATCH_DEBOUNCE: %w", EnvPrefix, err)
		}
		config.Watch.Debounce = d
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home := l.HomeDir
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

func (l *Loader) workDir() string {
	if l.WorkDir != "" {
		return l.WorkDir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

// findProjectConfig searches for reflink.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	dir := l.workDir()
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
