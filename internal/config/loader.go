package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // studio zones must resolve in minimal containers

	"github.com/kelseyhightower/envconfig"

	"github.com/example/studio-reminders/internal/application"
	"github.com/example/studio-reminders/internal/notify"
)

// Prefix is prepended to every environment variable name.
const Prefix = "REMINDERS"

// Config captures environment driven configuration values for the reminder service.
type Config struct {
	HTTPPort   int    `envconfig:"HTTP_PORT" default:"8080"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"reminders.db"`
	Timezone   string `envconfig:"TIMEZONE" default:"UTC"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	PublicBaseURL     string        `envconfig:"PUBLIC_BASE_URL"`
	TokenTTL          time.Duration `envconfig:"TOKEN_TTL" default:"168h"`
	ImminentLead      time.Duration `envconfig:"IMMINENT_LEAD" default:"2h"`
	ImminentTolerance time.Duration `envconfig:"IMMINENT_TOLERANCE" default:"30m"`
	MaxConcurrency    int           `envconfig:"MAX_CONCURRENCY" default:"8"`
	Dedupe            bool          `envconfig:"DEDUPE" default:"false"`
	ClaimTimeout      time.Duration `envconfig:"CLAIM_TIMEOUT" default:"30m"`

	TriggerSecretHash string `envconfig:"TRIGGER_SECRET_HASH"`

	Provider       string `envconfig:"PROVIDER" default:"log"`
	ProviderURL    string `envconfig:"PROVIDER_URL"`
	ProviderAPIKey string `envconfig:"PROVIDER_API_KEY"`
	SenderAddress  string `envconfig:"SENDER_ADDRESS"`
	AMQPURL        string `envconfig:"AMQP_URL"`
	AMQPExchange   string `envconfig:"AMQP_EXCHANGE" default:"reminders"`

	OTelEndpoint string `envconfig:"OTEL_ENDPOINT"`
	OTelInsecure bool   `envconfig:"OTEL_INSECURE" default:"false"`

	location *time.Location
}

// Location returns the parsed studio time zone.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Load parses configuration values from the current process environment.
//
// Defaults are applied for optional fields. Missing required values and
// malformed values are each reported in one aggregated error.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid environment: %w", err)
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)
	requireValue := func(name, value string) bool {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, envName(name))
			return false
		}
		return true
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		invalid = append(invalid, envName("HTTP_PORT"))
	}
	if strings.TrimSpace(cfg.SQLitePath) == "" {
		invalid = append(invalid, envName("SQLITE_PATH"))
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		invalid = append(invalid, envName("TIMEZONE"))
	} else {
		cfg.location = loc
	}

	if requireValue("PUBLIC_BASE_URL", cfg.PublicBaseURL) {
		if u, err := url.Parse(cfg.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			invalid = append(invalid, envName("PUBLIC_BASE_URL"))
		}
	}

	for name, d := range map[string]time.Duration{
		"TOKEN_TTL":          cfg.TokenTTL,
		"IMMINENT_LEAD":      cfg.ImminentLead,
		"IMMINENT_TOLERANCE": cfg.ImminentTolerance,
		"CLAIM_TIMEOUT":      cfg.ClaimTimeout,
	} {
		if d <= 0 {
			invalid = append(invalid, envName(name))
		}
	}
	if cfg.MaxConcurrency <= 0 {
		invalid = append(invalid, envName("MAX_CONCURRENCY"))
	}

	if requireValue("TRIGGER_SECRET_HASH", cfg.TriggerSecretHash) {
		if err := application.ParseSecretHash(cfg.TriggerSecretHash); err != nil {
			invalid = append(invalid, envName("TRIGGER_SECRET_HASH"))
		}
	}

	switch cfg.Provider {
	case notify.KindLog:
	case notify.KindHTTP:
		requireValue("PROVIDER_URL", cfg.ProviderURL)
		requireValue("SENDER_ADDRESS", cfg.SenderAddress)
	case notify.KindAMQP:
		requireValue("AMQP_URL", cfg.AMQPURL)
		requireValue("AMQP_EXCHANGE", cfg.AMQPExchange)
	default:
		invalid = append(invalid, envName("PROVIDER"))
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// SelectorConfig derives the window configuration.
func (c Config) SelectorConfig() application.SelectorConfig {
	return application.SelectorConfig{
		Location:          c.Location(),
		ImminentLead:      c.ImminentLead,
		ImminentTolerance: c.ImminentTolerance,
	}
}

func envName(name string) string {
	return Prefix + "_" + name
}
