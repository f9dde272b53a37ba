package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// RepoDirName is the per-repository config directory searched upward from the working directory.
const RepoDirName = ".coreheart"

// configFileNames are tried in order inside a config directory.
var configFileNames = []string{"config.json", "config.yaml", "config.yml"}

// Config holds application configuration.
type Config struct {
	// Backend selects where documents are persisted: "file" (default) or "sqlite".
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`

	// BreathLogCap is the maximum number of breath items kept; oldest are evicted.
	BreathLogCap int `json:"breath_log_cap,omitempty" yaml:"breath_log_cap,omitempty"`

	// CentralCap is the maximum number of central definitions kept.
	CentralCap int `json:"central_cap,omitempty" yaml:"central_cap,omitempty"`

	// LedgerCap is the maximum number of primary ha-coin events kept.
	LedgerCap int `json:"ledger_cap,omitempty" yaml:"ledger_cap,omitempty"`

	// LedgerReadMax caps the limit accepted by a ledger read.
	LedgerReadMax int `json:"ledger_read_max,omitempty" yaml:"ledger_read_max,omitempty"`

	Filter FilterConfig `json:"filter" yaml:"filter"`
	Server ServerConfig `json:"server" yaml:"server"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// DBMaxOpenConns limits open connections for the sqlite backend. 0 means sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" yaml:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle connections for the sqlite backend. 0 means sql.DB default.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" yaml:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`

	// DisabledTypes disables every MCP tool of a type (breath, purify, meeting, central, hacoin).
	DisabledTypes []string `json:"disabled_types,omitempty" yaml:"disabled_types,omitempty"`
}

// FilterConfig tunes the inbound breath content filter.
type FilterConfig struct {
	// Disabled turns the filter off; every non-empty text is stored.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// MaxChars drops texts longer than this many characters.
	MaxChars int `json:"max_chars,omitempty" yaml:"max_chars,omitempty"`

	// RepeatRun drops texts containing one character repeated this many times in a row.
	RepeatRun int `json:"repeat_run,omitempty" yaml:"repeat_run,omitempty"`

	// ExtraTerms extends the built-in denylist.
	ExtraTerms []string `json:"extra_terms,omitempty" yaml:"extra_terms,omitempty"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Bind string `json:"bind,omitempty" yaml:"bind,omitempty"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:       BackendFile,
		BreathLogCap:  300,
		CentralCap:    500,
		LedgerCap:     10000,
		LedgerReadMax: 2000,
		Filter: FilterConfig{
			MaxChars:  2000,
			RepeatRun: 8,
		},
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 4000,
		},
		LogLevel: "info",
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate rejects values that cannot be used at runtime.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendFile, BackendSQLite)
	}
	caps := map[string]int{
		"breath_log_cap":    c.BreathLogCap,
		"central_cap":       c.CentralCap,
		"ledger_cap":        c.LedgerCap,
		"ledger_read_max":   c.LedgerReadMax,
		"filter.max_chars":  c.Filter.MaxChars,
		"filter.repeat_run": c.Filter.RepeatRun,
	}
	for name, v := range caps {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Load loads configuration from baseDir/config.json (or config.yaml).
// Returns default config if no file exists.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.coreheart.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(findConfigFile(baseDir))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// LoadWithRepo loads configuration from both the global base directory and the nearest
// repo-level .coreheart directory found by walking upward from startDir.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(findConfigFile(globalDir))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// ApplyEnv overrides values from environment variables. PORT mirrors the
// original server's listener override.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// FindRepoConfig walks upward from startDir to find the nearest .coreheart config file.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		if path := findConfigFile(filepath.Join(dir, RepoDirName)); path != "" {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// findConfigFile returns the first existing config file in dir, or "".
func findConfigFile(dir string) string {
	for _, name := range configFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or missing (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	cfg := &Config{}
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	switch filepath.Ext(configPath) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Backend = firstString(overlay.Backend, base.Backend)
	result.LogLevel = firstString(overlay.LogLevel, base.LogLevel)
	result.Server.Bind = firstString(overlay.Server.Bind, base.Server.Bind)

	result.BreathLogCap = firstInt(overlay.BreathLogCap, base.BreathLogCap)
	result.CentralCap = firstInt(overlay.CentralCap, base.CentralCap)
	result.LedgerCap = firstInt(overlay.LedgerCap, base.LedgerCap)
	result.LedgerReadMax = firstInt(overlay.LedgerReadMax, base.LedgerReadMax)
	result.Filter.MaxChars = firstInt(overlay.Filter.MaxChars, base.Filter.MaxChars)
	result.Filter.RepeatRun = firstInt(overlay.Filter.RepeatRun, base.Filter.RepeatRun)
	result.Server.Port = firstInt(overlay.Server.Port, base.Server.Port)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.Filter.Disabled = base.Filter.Disabled || overlay.Filter.Disabled

	// Arrays: merge and deduplicate
	result.Filter.ExtraTerms = mergeStringSlice(base.Filter.ExtraTerms, overlay.Filter.ExtraTerms)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return strings.TrimSpace(overlay)
	}
	return base
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
