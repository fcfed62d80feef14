package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// CDP driver names.
const (
	DriverRaw      = "raw"
	DriverChromedp = "chromedp"
)

// Config holds all configuration for the booktabs controller.
type Config struct {
	// CDP connection settings
	CDPAddress   string
	CDPPort      int
	CDPDriver    string
	CDPTimeoutMS int

	// HTTP listener
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Logging
	LogLevel string
	LogFile  string

	// Storage
	SettingsFile         string
	SettingsDefaultsFile string
	BackupDir            string
	JournalDir           string
	JournalMaxSizeMB     int

	// Tab behavior
	HostSite   string
	OptionsURL string

	// Storage error notifications
	NtfyURL string

	// Browser launch
	BrowserLaunch     bool
	BrowserProfileDir string
	BrowserStartURL   string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	bindAddr := getEnvOrDefault("CONTROLLER_BIND_ADDR", "127.0.0.1:8188")
	cfg := &Config{
		CDPAddress:           getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:              getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		CDPDriver:            strings.ToLower(getEnvOrDefault("CONTROLLER_CDP_DRIVER", DriverRaw)),
		CDPTimeoutMS:         getEnvIntOrDefault("CONTROLLER_CDP_TIMEOUT_MS", 5000),
		BindAddr:             bindAddr,
		PortCandidates:       getEnvListOrDefault("CONTROLLER_PORT_CANDIDATES", []string{"127.0.0.1:8189", "127.0.0.1:8190", "127.0.0.1:8191"}),
		PortAutoFallback:     getEnvBoolOrDefault("CONTROLLER_PORT_AUTO_FALLBACK", true),
		LogLevel:             strings.ToLower(getEnvOrDefault("CONTROLLER_LOG_LEVEL", "info")),
		LogFile:              getEnvOrDefault("CONTROLLER_LOG_FILE", "logs/booktabs.log"),
		SettingsFile:         getEnvOrDefault("SETTINGS_FILE", "./data/settings.json"),
		SettingsDefaultsFile: getEnvOrDefault("SETTINGS_DEFAULTS_FILE", ""),
		BackupDir:            getEnvOrDefault("BACKUP_DIR", "./data/backups"),
		JournalDir:           getEnvOrDefault("JOURNAL_DIR", "./data/journal"),
		JournalMaxSizeMB:     getEnvIntOrDefault("JOURNAL_MAX_SIZE_MB", 50),
		HostSite:             strings.ToLower(getEnvOrDefault("HOST_SITE_HOSTNAME", "")),
		OptionsURL:           getEnvOrDefault("CONTROLLER_OPTIONS_URL", ""),
		NtfyURL:              getEnvOrDefault("CONTROLLER_NTFY_URL", ""),
		BrowserLaunch:        getEnvBoolOrDefault("BROWSER_LAUNCH", false),
		BrowserProfileDir:    getEnvOrDefault("BROWSER_PROFILE_DIR", "./data/chromium-profile"),
		BrowserStartURL:      getEnvOrDefault("BROWSER_START_URL", "about:blank"),
	}
	if cfg.CDPTimeoutMS < 1000 {
		cfg.CDPTimeoutMS = 1000
	}
	if cfg.OptionsURL == "" {
		cfg.OptionsURL = "http://" + bindAddr + "/docs"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CDPDriver {
	case DriverRaw, DriverChromedp:
	default:
		return fmt.Errorf("CONTROLLER_CDP_DRIVER must be %q or %q, got %q", DriverRaw, DriverChromedp, c.CDPDriver)
	}
	if c.CDPPort <= 0 || c.CDPPort > 65535 {
		return fmt.Errorf("CHROMIUM_CDP_PORT out of range: %d", c.CDPPort)
	}
	if c.SettingsFile == "" {
		return fmt.Errorf("SETTINGS_FILE must not be empty")
	}
	return nil
}

// CDPURL returns the CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma-separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
