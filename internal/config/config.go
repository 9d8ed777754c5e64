package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EntityConfig describes one mergeable entity kind
type EntityConfig struct {
	Kind              string   `yaml:"kind"`
	Collection        string   `yaml:"collection"`
	ProfileCollection string   `yaml:"profile_collection"`
	ForeignKeys       []string `yaml:"foreign_keys"`
	DisplayFields     []string `yaml:"display_fields"`
}

// SingletonConfig describes a collection holding at most one row per
// (type, owner). Row ids are "<type><separator><ownerId>".
type SingletonConfig struct {
	Collection string `yaml:"collection"`
	TypeField  string `yaml:"type_field"`
	OwnerField string `yaml:"owner_field"`
	Separator  string `yaml:"separator"`
}

// Config represents the application configuration
type Config struct {
	DBPath         string              `yaml:"db_path"`
	LogLevel       string              `yaml:"log_level"`
	Output         string              `yaml:"output"`
	BatchSize      int                 `yaml:"batch_size"`
	YieldThreshold int                 `yaml:"yield_threshold"`
	SoftDelete     bool                `yaml:"soft_delete"`
	TieBreak       string              `yaml:"tie_break"`
	Entities       []EntityConfig      `yaml:"entities"`
	Singletons     []SingletonConfig   `yaml:"singletons"`
	ForeignKeys    map[string][]string `yaml:"foreign_keys"`
}

// Default returns the built-in configuration for the CRM collections
func Default() *Config {
	return &Config{
		LogLevel:       "info",
		Output:         "table",
		BatchSize:      100,
		YieldThreshold: 500,
		SoftDelete:     true,
		TieBreak:       "prefer-a",
		Entities: []EntityConfig{
			{
				Kind:              "contact",
				Collection:        "contacts",
				ProfileCollection: "contactProfiles",
				ForeignKeys:       []string{"contactId"},
				DisplayFields:     []string{"firstName", "lastName", "email"},
			},
			{
				Kind:              "partner",
				Collection:        "partners",
				ProfileCollection: "partnerProfiles",
				ForeignKeys:       []string{"partnerId", "referralPartnerId"},
				DisplayFields:     []string{"company", "firstName", "lastName", "email"},
			},
		},
		Singletons: []SingletonConfig{
			{Collection: "notifications", TypeField: "type", OwnerField: "ownerId", Separator: ":"},
		},
		ForeignKeys: map[string][]string{},
	}
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/recmerge/config.yaml (YAML), or RECMERGE_CONFIG if set
func Load() (*Config, error) {
	cfg := Default()

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// YAML config is optional; a missing file is not an error
	if err := loadYAMLConfig(cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.DBPath == "" {
		// Check for project-local database first
		if _, err := os.Stat(".recmerge/recmerge.db"); err == nil {
			cfg.DBPath = ".recmerge/recmerge.db"
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			cfg.DBPath = filepath.Join(homeDir, ".local", "share", "recmerge", "recmerge.db")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if dbPath := getEnvOrFile("RECMERGE_DB_PATH", "RECMERGE_DB_PATH_FILE"); dbPath != "" {
		cfg.DBPath = strings.TrimSpace(dbPath)
	}
	if logLevel := os.Getenv("RECMERGE_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if output := os.Getenv("RECMERGE_OUTPUT"); output != "" {
		cfg.Output = output
	}
	if tieBreak := os.Getenv("RECMERGE_TIE_BREAK"); tieBreak != "" {
		cfg.TieBreak = tieBreak
	}
	if v := os.Getenv("RECMERGE_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RECMERGE_BATCH_SIZE %q: %w", v, err)
		}
		cfg.BatchSize = n
	}
	if v := os.Getenv("RECMERGE_YIELD_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RECMERGE_YIELD_THRESHOLD %q: %w", v, err)
		}
		cfg.YieldThreshold = n
	}
	if v := os.Getenv("RECMERGE_SOFT_DELETE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid RECMERGE_SOFT_DELETE %q: %w", v, err)
		}
		cfg.SoftDelete = b
	}
	return nil
}

// Validate checks internal consistency of the configuration
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.YieldThreshold < 0 {
		return fmt.Errorf("yield_threshold cannot be negative, got %d", c.YieldThreshold)
	}
	switch c.Output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("invalid output %q: must be one of: table, json, yaml", c.Output)
	}
	kinds := make(map[string]bool, len(c.Entities))
	for _, e := range c.Entities {
		if e.Kind == "" || e.Collection == "" {
			return fmt.Errorf("entity entries require kind and collection")
		}
		if kinds[e.Kind] {
			return fmt.Errorf("duplicate entity kind %q", e.Kind)
		}
		kinds[e.Kind] = true
		if len(e.ForeignKeys) == 0 {
			return fmt.Errorf("entity %q has no foreign_keys", e.Kind)
		}
	}
	for _, s := range c.Singletons {
		if s.Collection == "" || s.TypeField == "" || s.OwnerField == "" {
			return fmt.Errorf("singleton entries require collection, type_field and owner_field")
		}
	}
	return nil
}

// Entity returns the entity configuration for kind
func (c *Config) Entity(kind string) (EntityConfig, error) {
	for _, e := range c.Entities {
		if e.Kind == kind {
			return e, nil
		}
	}
	known := make([]string, 0, len(c.Entities))
	for _, e := range c.Entities {
		known = append(known, e.Kind)
	}
	return EntityConfig{}, fmt.Errorf("unknown entity kind %q (known: %s)", kind, strings.Join(known, ", "))
}

// loadYAMLConfig loads configuration from RECMERGE_CONFIG or
// ~/.config/recmerge/config.yaml
func loadYAMLConfig(cfg *Config) error {
	configPath := os.Getenv("RECMERGE_CONFIG")
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		configPath = filepath.Join(homeDir, ".config", "recmerge", "config.yaml")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return string(data)
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
