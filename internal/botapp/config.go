package botapp

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "membot/core/config"
	coredatabase "membot/core/database"
)

// GroupSeed declares a managed group known at deploy time. Parent refers to
// another seed's title and turns the group into a family subgroup.
type GroupSeed struct {
	TelegramID int64  `yaml:"telegram_id"`
	Title      string `yaml:"title"`
	Parent     string `yaml:"parent"`
}

// AppConfig holds settings specific to the membership bots.
type AppConfig struct {
	// SupportChatID is the staff chat receiving request reports and
	// support messages.
	SupportChatID int64 `yaml:"support_chat_id" envconfig:"SUPPORT_CHAT_ID"`
	// OwnerIDs receive the daily membership change report.
	OwnerIDs []int64 `yaml:"owner_ids" envconfig:"OWNER_IDS"`

	ResolveIntervalSeconds int `yaml:"resolve_interval_seconds" envconfig:"RESOLVE_INTERVAL_SECONDS"`
	SweepHour              int `yaml:"sweep_hour" envconfig:"SWEEP_HOUR"`

	Groups []GroupSeed `yaml:"groups"`
}

// Config aggregates core, database and app-level configuration.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	App      AppConfig           `yaml:"app"`
}

// CoreConfig exposes the embedded core configuration for the runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Core
}

// LoadConfig reads YAML configuration overlaid with environment variables.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if err := normalizeApp(&cfg.App); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalizeApp(app *AppConfig) error {
	if app.SupportChatID == 0 {
		return fmt.Errorf("app.support_chat_id is required")
	}
	if app.ResolveIntervalSeconds <= 0 {
		app.ResolveIntervalSeconds = 10
	}
	if app.SweepHour < 0 || app.SweepHour > 23 {
		return fmt.Errorf("app.sweep_hour must be within 0..23")
	}
	if app.SweepHour == 0 {
		app.SweepHour = 23
	}
	seen := make(map[string]struct{}, len(app.Groups))
	for _, g := range app.Groups {
		if g.TelegramID == 0 || g.Title == "" {
			return fmt.Errorf("app.groups entries need telegram_id and title")
		}
		if _, dup := seen[g.Title]; dup {
			return fmt.Errorf("app.groups: duplicate title %q", g.Title)
		}
		seen[g.Title] = struct{}{}
	}
	for _, g := range app.Groups {
		if g.Parent == "" {
			continue
		}
		if _, ok := seen[g.Parent]; !ok {
			return fmt.Errorf("app.groups: %q refers to unknown parent %q", g.Title, g.Parent)
		}
	}
	return nil
}
