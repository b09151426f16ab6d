// Package config defines the global configuration structure for the
// pagenotify engine. Configuration is loaded once at process initialization
// and is immutable thereafter. It follows 12-Factor principles by strictly
// separating code from configuration.
//
// Values are resolved from the OS environment, optionally seeded from a
// dotenv file. Any missing required value or invalid format causes the
// process to exit immediately on startup (fail fast).
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pagenotify/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the engine. It is
// populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Platform PlatformConfig
	Mailer   MailerConfig
	Dispatch DispatchConfig
	Feature  FeatureConfig
}

// ServerConfig holds the events server binding and the public base URL used
// to build the tracking and unsubscribe links embedded in outbound mail.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URL of the deployment (no trailing slash), e.g. https://wiki.example.org
	PublicURL string `envconfig:"PUBLIC_URL" validate:"required,url"`
}

// PublicHost returns the host portion of the public URL. Used as the
// tracking token domain when no mail identity host is configured.
func (s ServerConfig) PublicHost() string {
	u, err := url.Parse(s.PublicURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// PlatformConfig holds the connection to the host content-management
// platform whose pages, users, and groups this engine consumes.
type PlatformConfig struct {
	// Base URL of the platform API endpoint, e.g. https://wiki.example.org/api.php
	APIURL string `envconfig:"PLATFORM_API_URL"`
	// Bot credentials for API calls that need elevated read access.
	APIUser     string        `envconfig:"PLATFORM_API_USER"`
	APIPassword SecretString  `envconfig:"PLATFORM_API_PASSWORD"`
	Timeout     time.Duration `envconfig:"PLATFORM_TIMEOUT" default:"15s"`
}

// MailerConfig selects the outbound mail provider and carries its
// credential map. Conf is a JSON object whose recognized keys depend on
// the provider and transport mode, e.g.
//
//	MAILER_PROVIDER=sendgrid
//	MAILER_CONF_JSON={"transport":"api","key":"SG...."}
type MailerConfig struct {
	Provider string `envconfig:"MAILER_PROVIDER" default:"sendmail"`
	ConfJSON string `envconfig:"MAILER_CONF_JSON" default:"{}"`

	FromAddress string `envconfig:"MAIL_FROM_ADDRESS" validate:"required,email"`
	FromName    string `envconfig:"MAIL_FROM_NAME" default:""`

	// IDHost overrides the domain used in Message-ID tracking tokens.
	// When empty, the parsed host of the public URL is used.
	IDHost string `envconfig:"MAIL_ID_HOST"`

	SendTimeout time.Duration `envconfig:"MAIL_SEND_TIMEOUT" default:"30s"`
}

// Conf parses the JSON credential map. Keys are lowercased so lookups are
// case-insensitive, matching how administrators historically supplied them.
func (m MailerConfig) Conf() (map[string]string, error) {
	raw := map[string]string{}
	if strings.TrimSpace(m.ConfJSON) != "" {
		if err := json.Unmarshal([]byte(m.ConfJSON), &raw); err != nil {
			return nil, fmt.Errorf("parsing MAILER_CONF_JSON: %w", err)
		}
	}
	conf := make(map[string]string, len(raw))
	for k, v := range raw {
		conf[strings.ToLower(k)] = v
	}
	return conf, nil
}

// From returns the sender identity as a mail address.
func (m MailerConfig) From() types.Address {
	return types.Address{Email: m.FromAddress, Name: m.FromName}
}

// DispatchConfig tunes the dispatch engine.
type DispatchConfig struct {
	// DefaultLocale is the locale used for the canonical render that feeds
	// change detection and the sent log.
	DefaultLocale string `envconfig:"DISPATCH_DEFAULT_LOCALE" default:"en"`
	// RecipientPageSize bounds a single membership query.
	RecipientPageSize int `envconfig:"DISPATCH_RECIPIENT_PAGE_SIZE" default:"500"`
}

// FeatureConfig holds the engine's feature toggles.
type FeatureConfig struct {
	// UnsubscribeLink appends an inline unsubscribe footer to HTML bodies.
	UnsubscribeLink bool `envconfig:"FEATURE_UNSUBSCRIBE_LINK" default:"true"`
	// EmailTracking appends the 1x1 open-tracking pixel to HTML bodies.
	EmailTracking bool `envconfig:"FEATURE_EMAIL_TRACKING" default:"true"`
	// RequireEmailOnSignup is passed through to the host platform adapter.
	RequireEmailOnSignup bool `envconfig:"FEATURE_REQUIRE_EMAIL_ON_SIGNUP" default:"false"`
	// DisableVersionCheck suppresses the admin-side release check.
	DisableVersionCheck bool `envconfig:"FEATURE_DISABLE_VERSION_CHECK" default:"false"`
}
