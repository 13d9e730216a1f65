// Package conf loads and validates service configuration.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the full service configuration, loaded from ciwatch.yaml
// with CIWATCH_-prefixed environment overrides.
type Settings struct {
	Log      LogSettings      `mapstructure:"log"`
	Server   ServerSettings   `mapstructure:"server"`
	Database DatabaseSettings `mapstructure:"database"`
	GitHub   GitHubSettings   `mapstructure:"github"`
	Alerting AlertingSettings `mapstructure:"alerting"`
}

// LogSettings controls log output.
type LogSettings struct {
	Level string `mapstructure:"level"`
}

// ServerSettings controls the HTTP listener.
type ServerSettings struct {
	Listen          string   `mapstructure:"listen"`
	ShutdownTimeout Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseSettings selects the storage backend.
type DatabaseSettings struct {
	Dialect string `mapstructure:"dialect"` // "sqlite" or "mysql"
	DSN     string `mapstructure:"dsn"`
}

// GitHubSettings configures the upstream run source and webhook intake.
type GitHubSettings struct {
	APIBaseURL    string   `mapstructure:"api_base_url"`
	Token         string   `mapstructure:"token"`
	WebhookSecret string   `mapstructure:"webhook_secret"`
	SyncPageLimit int      `mapstructure:"sync_page_limit"`
	SyncPageSize  int      `mapstructure:"sync_page_size"`
	FetchTimeout  Duration `mapstructure:"fetch_timeout"`
}

// AlertingSettings configures alert evaluation and dispatch.
type AlertingSettings struct {
	// SuppressionWindow is how long a rule stays quiet after firing while
	// its metric remains past threshold.
	SuppressionWindow Duration `mapstructure:"suppression_window"`
	DispatchTimeout   Duration `mapstructure:"dispatch_timeout"`
}

// Load reads configuration from the given file (empty means search the
// working directory and /etc/ciwatch) and the environment.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	v.SetConfigName("ciwatch")
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ciwatch")
	}

	v.SetEnvPrefix("CIWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults plus env cover everything.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate checks cross-field constraints the decoder cannot express.
func (s *Settings) Validate() error {
	if s.GitHub.SyncPageLimit < 1 {
		return fmt.Errorf("github.sync_page_limit must be at least 1, got %d", s.GitHub.SyncPageLimit)
	}
	if s.GitHub.SyncPageSize < 1 || s.GitHub.SyncPageSize > 100 {
		return fmt.Errorf("github.sync_page_size must be in 1..100, got %d", s.GitHub.SyncPageSize)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("server.listen", ":8090")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.dialect", "sqlite")
	v.SetDefault("database.dsn", "ciwatch.db")
	v.SetDefault("github.api_base_url", "https://api.github.com")
	v.SetDefault("github.sync_page_limit", 5)
	v.SetDefault("github.sync_page_size", 100)
	v.SetDefault("github.fetch_timeout", "30s")
	v.SetDefault("alerting.suppression_window", (1 * time.Hour).String())
	v.SetDefault("alerting.dispatch_timeout", "10s")
}
