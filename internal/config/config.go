package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	internalsettings "github.com/router-for-me/RepScan/internal/settings"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvAPIKey       = "REPSCAN_API_KEY"
	EnvScanDir      = "REPSCAN_SCAN_DIR"
)

// ErrMissingAPIKey indicates neither the config file nor the environment
// supplied a lookup key.
var ErrMissingAPIKey = errors.New("missing api key (set `api-key` in config file or " + EnvAPIKey + ")")

// LoggingConfig controls the durable log.
type LoggingConfig struct {
	File       string `yaml:"log-file"`
	Level      string `yaml:"log-level"`
	MaxSizeMB  int    `yaml:"log-max-size"`
	MaxBackups int    `yaml:"log-max-backups"`
}

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string `yaml:"-"`

	APIKey    string `yaml:"api-key"`
	LookupURL string `yaml:"lookup-url"`

	ScanDir     string   `yaml:"scan-dir"`
	StateDir    string   `yaml:"state-dir"`
	CounterFile string   `yaml:"counter-file"`
	WindowFile  string   `yaml:"window-file"`
	ReportDir   string   `yaml:"report-dir"`
	SkipNames   []string `yaml:"skip-names"`

	DailyCap       int           `yaml:"daily-cap"`
	PerMinute      int           `yaml:"per-minute"`
	Pause          time.Duration `yaml:"pause"`
	RequestTimeout time.Duration `yaml:"request-timeout"`

	Logging LoggingConfig `yaml:",inline"`

	DatabaseDSN string `yaml:"database-dsn"`
	StatusAddr  string `yaml:"status-addr"`
}

// Default returns the configuration used when no file is present.
func Default() AppConfig {
	return AppConfig{
		LookupURL:      internalsettings.DefaultLookupURL,
		ScanDir:        internalsettings.DefaultScanDir,
		StateDir:       ".",
		CounterFile:    internalsettings.DefaultCounterFile,
		WindowFile:     internalsettings.DefaultWindowFile,
		ReportDir:      ".",
		SkipNames:      append([]string(nil), internalsettings.DefaultSkipNames...),
		DailyCap:       internalsettings.DefaultPeriodCap,
		PerMinute:      internalsettings.DefaultPerMinute,
		Pause:          internalsettings.DefaultPause,
		RequestTimeout: internalsettings.DefaultRequestTimeout,
		Logging: LoggingConfig{
			File:       internalsettings.DefaultLogFile,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		StatusAddr: internalsettings.DefaultStatusAddr,
	}
}

// LoadFromEnv loads the config file named by CONFIG_PATH.
func LoadFromEnv() (AppConfig, error) {
	return Load(ResolveConfigPath(os.Getenv(EnvConfigPath)))
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads configPath over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(configPath string) (AppConfig, error) {
	cfg := Default()
	cfg.ConfigPath = configPath

	if strings.TrimSpace(configPath) != "" {
		data, errRead := os.ReadFile(configPath)
		switch {
		case errRead == nil:
			if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
				return AppConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
			}
		case errors.Is(errRead, os.ErrNotExist):
		default:
			return AppConfig{}, fmt.Errorf("read config file: %w", errRead)
		}
	}

	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		cfg.APIKey = key
	}
	if dir := strings.TrimSpace(os.Getenv(EnvScanDir)); dir != "" {
		cfg.ScanDir = dir
	}
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.DatabaseDSN = dsn
	}

	cfg.normalize()
	return cfg, nil
}

// normalize trims values and restores defaults for blank paths.
func (c *AppConfig) normalize() {
	def := Default()
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.LookupURL = strings.TrimRight(strings.TrimSpace(c.LookupURL), "/")
	c.DatabaseDSN = strings.TrimSpace(c.DatabaseDSN)

	fill := func(v *string, fallback string) {
		*v = strings.TrimSpace(*v)
		if *v == "" {
			*v = fallback
		}
	}
	fill(&c.LookupURL, def.LookupURL)
	fill(&c.ScanDir, def.ScanDir)
	fill(&c.StateDir, def.StateDir)
	fill(&c.CounterFile, def.CounterFile)
	fill(&c.WindowFile, def.WindowFile)
	fill(&c.ReportDir, def.ReportDir)
	fill(&c.StatusAddr, def.StatusAddr)
	fill(&c.Logging.Level, def.Logging.Level)
	c.Logging.File = strings.TrimSpace(c.Logging.File)
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}

	names := make([]string, 0, len(c.SkipNames))
	for _, name := range c.SkipNames {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	c.SkipNames = names
}

// Validate rejects configurations a scan cannot run with.
func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.DailyCap <= 0 {
		return fmt.Errorf("daily-cap must be positive, got %d", c.DailyCap)
	}
	if c.PerMinute <= 0 {
		return fmt.Errorf("per-minute must be positive, got %d", c.PerMinute)
	}
	if c.Pause <= 0 {
		return fmt.Errorf("pause must be positive, got %s", c.Pause)
	}
	return nil
}

// CounterPath returns the counter record location.
func (c AppConfig) CounterPath() string { return c.statePath(c.CounterFile) }

// WindowPath returns the window record location.
func (c AppConfig) WindowPath() string { return c.statePath(c.WindowFile) }

func (c AppConfig) statePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.StateDir, name)
}
