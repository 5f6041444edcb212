package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	// APIBaseURL is the root of the remote cart REST API (no trailing slash needed).
	APIBaseURL string `json:"api_base_url,omitempty" yaml:"api_base_url,omitempty"`

	// APIToken is sent as a bearer token on every remote call.
	// TOTE_API_TOKEN overrides the file value.
	APIToken string `json:"api_token,omitempty" yaml:"api_token,omitempty"`

	// RequestTimeoutSeconds bounds each remote call. 0 means no client timeout.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty" yaml:"request_timeout_seconds,omitempty"`

	// GuestStorageKey is the local storage key holding the guest cart record.
	GuestStorageKey string `json:"guest_storage_key,omitempty" yaml:"guest_storage_key,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" yaml:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" yaml:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "cart".
	DisabledTypes []string `json:"disabled_types,omitempty" yaml:"disabled_types,omitempty"`

	// WebBind and WebPort control the address of `tote serve`.
	WebBind string `json:"web_bind,omitempty" yaml:"web_bind,omitempty"`
	WebPort int    `json:"web_port,omitempty" yaml:"web_port,omitempty"`
}

// Config file names, in lookup order.
var fileNames = []string{"config.json", "config.yaml", "config.yml"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:            "http://localhost:8080/api",
		RequestTimeoutSeconds: 10,
		GuestStorageKey:       "guest_cart",
		LogLevel:              "warn",
		WebBind:               "127.0.0.1",
		WebPort:               8420,
	}
}

// Load loads configuration from baseDir/config.json (or config.yaml).
// Returns default config if no file exists.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.tote.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadDirRaw(baseDir)
	if err != nil {
		return nil, err
	}
	return applyEnv(Merge(DefaultConfig(), cfg)), nil
}

// LoadWithRepo loads configuration from both global (~/.tote) and repo (.tote) directories.
// Repo config is found by walking upward from startDir.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadDirRaw(globalDir)
	if err != nil {
		return nil, err
	}

	repo := &Config{}
	if repoDir := FindRepoConfigDir(startDir); repoDir != "" {
		repo, err = loadDirRaw(repoDir)
		if err != nil {
			return nil, err
		}
	}

	return applyEnv(Merge(Merge(DefaultConfig(), global), repo)), nil
}

// FindRepoConfigDir walks upward from startDir to find the nearest .tote
// directory containing a config file. Returns "" if none is found.
func FindRepoConfigDir(startDir string) string {
	dir := startDir
	for {
		candidate := filepath.Join(dir, ".tote")
		for _, name := range fileNames {
			if _, err := os.Stat(filepath.Join(candidate, name)); err == nil {
				return candidate
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadDirRaw loads the first config file found in dir.
// Returns zero-valued config if none exists (not defaults).
func loadDirRaw(dir string) (*Config, error) {
	for _, name := range fileNames {
		cfg, err := loadFileRaw(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return &Config{}, nil
}

// loadFileRaw decodes a single config file, choosing the decoder by extension.
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
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

func applyEnv(cfg *Config) *Config {
	if token := strings.TrimSpace(os.Getenv("TOTE_API_TOKEN")); token != "" {
		cfg.APIToken = token
	}
	return cfg
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		APIBaseURL:            firstString(overlay.APIBaseURL, base.APIBaseURL),
		APIToken:              firstString(overlay.APIToken, base.APIToken),
		GuestStorageKey:       firstString(overlay.GuestStorageKey, base.GuestStorageKey),
		LogLevel:              firstString(overlay.LogLevel, base.LogLevel),
		WebBind:               firstString(overlay.WebBind, base.WebBind),
		RequestTimeoutSeconds: firstInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds),
		DBMaxOpenConns:        firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:        firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		WebPort:               firstInt(overlay.WebPort, base.WebPort),
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
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
