// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs in cron due-checking.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadConfig loads and validates the engine configuration from the
// environment. A missing or malformed required value returns an error; the
// caller is expected to treat that as fatal.
func LoadConfig() (*Config, error) {
	// All schedule evaluation and token timestamps assume UTC.
	time.Local = time.UTC
	os.Setenv("TZ", "UTC")

	// A missing .env file is fine; the environment may be fully populated
	// by the deployment instead.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// The mailer conf JSON must at least parse, even if empty; failing here
	// beats failing inside the first dispatch run.
	if _, err := cfg.Mailer.Conf(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
