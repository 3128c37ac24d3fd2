package feedtail

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pawbase/petsync/pkg/models"
)

// Config is the feedtail tool configuration, loaded from a YAML file
// and FEEDTAIL_* environment variables.
type Config struct {
	APIBaseURL   string        `mapstructure:"api_base_url"`
	RealtimeURL  string        `mapstructure:"realtime_url"`
	Token        string        `mapstructure:"token"`
	UserID       string        `mapstructure:"user_id"`
	ScopeKind    string        `mapstructure:"scope_kind"`
	ScopeID      string        `mapstructure:"scope_id"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	LogLevel     string        `mapstructure:"log_level"`
}

// Scope maps the configured kind/id pair to a stream scope.
func (c Config) Scope() (models.Scope, error) {
	var kind models.ScopeKind
	switch strings.ToLower(c.ScopeKind) {
	case "session", "chat":
		kind = models.ScopeChatSession
	case "feed", "notifications":
		kind = models.ScopeNotificationFeed
	default:
		return models.Scope{}, fmt.Errorf("unknown scope_kind %q (want session or feed)", c.ScopeKind)
	}
	scope := models.Scope{Kind: kind, ID: c.ScopeID}
	return scope, scope.Validate()
}

func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("api_base_url is required")
	}
	if _, err := c.Scope(); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads the configuration. path may be empty, in which case
// only defaults and environment variables apply.
func LoadConfig(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("scope_kind", "session")
	v.SetDefault("poll_interval", 3*time.Second)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("FEEDTAIL")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return conf, nil
}
