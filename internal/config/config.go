package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Storage backends understood by blobstore.Open.
const (
	BackendNone = "none"
	BackendDir  = "dir"
	BackendHTTP = "http"
)

// Config contains the program configuration
type Config struct {
	Verbose          bool          `yaml:"verbose" toml:"verbose"`
	DryRun           bool          `yaml:"dry_run" toml:"dry_run"`
	ParallelJobs     int           `yaml:"parallel_jobs" toml:"parallel_jobs"`
	MediaDir         string        `yaml:"media_dir" toml:"media_dir"`
	DBPath           string        `yaml:"db_path" toml:"db_path"`
	TagReader        string        `yaml:"tag_reader" toml:"tag_reader"`
	WriteIdentifiers bool          `yaml:"write_identifiers" toml:"write_identifiers"`
	Lookup           LookupConfig  `yaml:"lookup" toml:"lookup"`
	Storage          StorageConfig `yaml:"storage" toml:"storage"`
}

// LookupConfig selects the external metadata service
type LookupConfig struct {
	Provider  string `yaml:"provider" toml:"provider"`
	APIURL    string `yaml:"api_url" toml:"api_url"`
	UserAgent string `yaml:"user_agent" toml:"user_agent"`
}

// StorageConfig describes the remote object store
type StorageConfig struct {
	Backend   string `yaml:"backend" toml:"backend"`
	Dir       string `yaml:"dir" toml:"dir"`
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	Bucket    string `yaml:"bucket" toml:"bucket"`
	Token     string `yaml:"token" toml:"token"`
	Prefix    string `yaml:"prefix" toml:"prefix"`
	IndexName string `yaml:"index_name" toml:"index_name"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	appDir := GetDefaultAppDir()
	return Config{
		ParallelJobs: 4,
		MediaDir:     filepath.Join(appDir, "media"),
		DBPath:       filepath.Join(appDir, "db", "local.db"),
		TagReader:    "taglib",
		Lookup: LookupConfig{
			Provider:  "musicbrainz",
			APIURL:    "https://musicbrainz.org/ws/2",
			UserAgent: "monty/1.0 (https://github.com/monty)",
		},
		Storage: StorageConfig{
			Backend:   BackendNone,
			Bucket:    "monty-media",
			Prefix:    "audio",
			IndexName: "index/audio.json",
		},
	}
}

// LoadConfigFile loads configuration from a YAML or TOML file.
// If path is empty, searches standard locations. Returns defaults if no file found.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.MediaDir = ExpandHome(cfg.MediaDir)
	cfg.DBPath = ExpandHome(cfg.DBPath)
	cfg.Storage.Dir = ExpandHome(cfg.Storage.Dir)

	return cfg, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./monty.yaml",
		"./monty.yml",
		"./monty.toml",
		filepath.Join(home, ".config", "monty", "config.yaml"),
		filepath.Join(home, ".config", "monty", "config.yml"),
		filepath.Join(home, ".config", "monty", "config.toml"),
		filepath.Join(home, ".monty.yaml"),
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SaveConfigFile saves the configuration, picking the encoding from the extension
func SaveConfigFile(cfg Config, path string) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultAppDir returns the directory holding the cache and local database
func GetDefaultAppDir() string {
	return filepath.Join(homeDir(), ".monty")
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "monty", "config.yaml")
}

// GetDefaultLogPath returns the default log directory path
func GetDefaultLogPath() string {
	return filepath.Join(homeDir(), ".local", "share", "monty", "logs")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ParallelJobs < 1 {
		return fmt.Errorf("parallel jobs must be at least 1, got %d", c.ParallelJobs)
	}
	if c.ParallelJobs > 16 {
		return fmt.Errorf("parallel jobs cannot exceed 16, got %d", c.ParallelJobs)
	}

	if c.MediaDir == "" {
		return fmt.Errorf("media_dir cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path cannot be empty")
	}

	switch c.TagReader {
	case "taglib", "dhowden", "chain":
	default:
		return fmt.Errorf("unknown tag_reader %q, valid readers: taglib, dhowden, chain", c.TagReader)
	}

	switch c.Lookup.Provider {
	case "musicbrainz":
		if c.Lookup.APIURL == "" {
			return fmt.Errorf("lookup.api_url is required for the musicbrainz provider")
		}
	case "none":
	default:
		return fmt.Errorf("unknown lookup provider %q, valid providers: musicbrainz, none", c.Lookup.Provider)
	}

	switch c.Storage.Backend {
	case BackendNone, "":
	case BackendDir:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the dir backend")
		}
	case BackendHTTP:
		if !strings.HasPrefix(c.Storage.Endpoint, "http://") && !strings.HasPrefix(c.Storage.Endpoint, "https://") {
			return fmt.Errorf("storage.endpoint must start with http:// or https://")
		}
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the http backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q, valid backends: none, dir, http", c.Storage.Backend)
	}

	if c.Storage.IndexName == "" {
		return fmt.Errorf("storage.index_name cannot be empty")
	}

	return nil
}
