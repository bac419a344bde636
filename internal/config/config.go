package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Toggl         TogglConfig     `toml:"toggl"`
	Notion        NotionConfig    `toml:"notion"`
	Containers    ContainerConfig `toml:"containers"`
	Store         StoreConfig     `toml:"store"`
	Sync          SyncConfig      `toml:"sync"`
	Log           LogConfig       `toml:"log"`
	Notifications NotifyConfig    `toml:"notifications"`
}

type TogglConfig struct {
	APIToken string `toml:"api_token"`
	// WorkspaceID overrides the account's default workspace for reports and new entries.
	WorkspaceID int64  `toml:"workspace_id"`
	BaseURL     string `toml:"base_url"`
}

type NotionConfig struct {
	Token   string `toml:"token"`
	BaseURL string `toml:"base_url"`
	// HeatmapBlockID is the embed block `togglsync heatmap` points at.
	HeatmapBlockID string `toml:"heatmap_block_id"`
}

// ContainerConfig holds the database (or sqlite container) id of every record kind.
type ContainerConfig struct {
	Entries  string `toml:"entries"`
	Projects string `toml:"projects"`
	Clients  string `toml:"clients"`
	Tags     string `toml:"tags"`
	Years    string `toml:"years"`
	Months   string `toml:"months"`
	Weeks    string `toml:"weeks"`
	Days     string `toml:"days"`
	All      string `toml:"all"`
}

type StoreConfig struct {
	Backend string `toml:"backend"` // "notion" or "sqlite"
	Path    string `toml:"path"`    // sqlite file; empty means the default location
}

type SyncConfig struct {
	Timezone    string `toml:"timezone"`
	SkipReverse bool   `toml:"skip_reverse"`
	// IntervalMinutes is the period of `togglsync watch`.
	IntervalMinutes int `toml:"interval_minutes"`
}

type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type NotifyConfig struct {
	Enabled bool `toml:"enabled"`
}

func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Backend: "notion",
		},
		Sync: SyncConfig{
			Timezone:        "Asia/Shanghai",
			IntervalMinutes: 60,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Notifications: NotifyConfig{
			Enabled: false,
		},
	}
}

func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "togglsync"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at path (ConfigPath when empty), then the dotenv file at envFile
// (".env" when empty, ignored if missing), then applies environment overrides. Variables already
// set in the environment win over the dotenv file.
func Load(path, envFile string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFile(envFile string) error {
	explicit := envFile != ""
	if !explicit {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", envFile, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	// TIME_DATABASE_ID comes after the legacy name so it wins when both are set.
	overrides := []struct {
		key string
		dst *string
	}{
		{"TOGGL_TOKEN", &cfg.Toggl.APIToken},
		{"TOGGL_BASE_URL", &cfg.Toggl.BaseURL},
		{"NOTION_TOKEN", &cfg.Notion.Token},
		{"HEATMAP_BLOCK_ID", &cfg.Notion.HeatmapBlockID},
		{"TIME_DATABASE_NAME", &cfg.Containers.Entries},
		{"TIME_DATABASE_ID", &cfg.Containers.Entries},
		{"PROJECT_DATABASE_ID", &cfg.Containers.Projects},
		{"CLIENT_DATABASE_ID", &cfg.Containers.Clients},
		{"TAG_DATABASE_ID", &cfg.Containers.Tags},
		{"YEAR_DATABASE_ID", &cfg.Containers.Years},
		{"MONTH_DATABASE_ID", &cfg.Containers.Months},
		{"WEEK_DATABASE_ID", &cfg.Containers.Weeks},
		{"DAY_DATABASE_ID", &cfg.Containers.Days},
		{"ALL_DATABASE_ID", &cfg.Containers.All},
		{"SYNC_TIMEZONE", &cfg.Sync.Timezone},
		{"TOGGLSYNC_STORE", &cfg.Store.Backend},
		{"TOGGLSYNC_STORE_PATH", &cfg.Store.Path},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			*o.dst = v
		}
	}

	if v := strings.TrimSpace(os.Getenv("TOGGL_WORKSPACE_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing TOGGL_WORKSPACE_ID: %w", err)
		}
		cfg.Toggl.WorkspaceID = id
	}
	return nil
}

// Location loads the sync time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", c.Sync.Timezone, err)
	}
	return loc, nil
}

// Validate reports every missing setting a sync needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Toggl.APIToken == "" {
		errs = append(errs, errors.New("toggl api token is not set (TOGGL_TOKEN)"))
	}
	switch c.Store.Backend {
	case "notion":
		if c.Notion.Token == "" {
			errs = append(errs, errors.New("notion token is not set (NOTION_TOKEN)"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	containers := []struct{ name, env, value string }{
		{"entries", "TIME_DATABASE_ID", c.Containers.Entries},
		{"projects", "PROJECT_DATABASE_ID", c.Containers.Projects},
		{"clients", "CLIENT_DATABASE_ID", c.Containers.Clients},
		{"tags", "TAG_DATABASE_ID", c.Containers.Tags},
		{"years", "YEAR_DATABASE_ID", c.Containers.Years},
		{"months", "MONTH_DATABASE_ID", c.Containers.Months},
		{"weeks", "WEEK_DATABASE_ID", c.Containers.Weeks},
		{"days", "DAY_DATABASE_ID", c.Containers.Days},
		{"all", "ALL_DATABASE_ID", c.Containers.All},
	}
	for _, ct := range containers {
		if ct.value == "" {
			errs = append(errs, fmt.Errorf("%s container is not set (%s)", ct.name, ct.env))
		}
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PIDPath is where `togglsync watch` records its process id.
func PIDPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "togglsync.pid"), nil
}

// SaveContainers persists container ids to the config file using a read-modify-write approach
// to preserve other settings.
func SaveContainers(path string, containers ContainerConfig) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	cfg := make(map[string]any)

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg["containers"] = map[string]any{
		"entries":  containers.Entries,
		"projects": containers.Projects,
		"clients":  containers.Clients,
		"tags":     containers.Tags,
		"years":    containers.Years,
		"months":   containers.Months,
		"weeks":    containers.Weeks,
		"days":     containers.Days,
		"all":      containers.All,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	out, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, out, 0644)
}
