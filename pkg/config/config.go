// Package config provides configuration management for the migration tooling.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Source    SourceConfig
	Target    TargetConfig
	Migration MigrationConfig
	StateDB   string
	Debug     bool
}

// SourceConfig configures the bookkeeping-service drivers.
type SourceConfig struct {
	Driver string // "rest" or "legacy"

	// REST driver.
	RESTURL       string
	APIKey        string
	PageSize      int
	RatePerSecond float64
	Timeout       time.Duration

	// Legacy SOAP driver.
	SOAPURL       string
	SOAPUsername  string
	SOAPCode1     string
	SOAPCode2     string
}

// TargetConfig configures the document-persistence collaborator.
type TargetConfig struct {
	APIURL string
	APIKey string
	// Memory switches to the in-memory store for dry runs.
	Memory bool
}

// MigrationConfig tunes the orchestrator and document builder.
type MigrationConfig struct {
	Company           string
	Workers           int
	MaxRetries        int
	FailureThreshold  float64
	AllowBounded      bool
	AmountEpsilon     string
	ProfilePath       string
	ReceivableAccount string
	PayableAccount    string
	ClearingAccount   string
	ClearingPatterns  []string
	SkipZeroAmountFor []string
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	pageSize, err := parseIntEnv("SOURCE_PAGE_SIZE", 500)
	if err != nil {
		return nil, err
	}
	ratePerSecond, err := parseFloatEnv("SOURCE_RATE_PER_SECOND", 5)
	if err != nil {
		return nil, err
	}
	timeoutSec, err := parseIntEnv("SOURCE_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	workers, err := parseIntEnv("MIGRATION_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	maxRetries, err := parseIntEnv("MIGRATION_MAX_RETRIES", 4)
	if err != nil {
		return nil, err
	}
	failureThreshold, err := parseFloatEnv("MIGRATION_FAILURE_THRESHOLD", 0.10)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Source: SourceConfig{
			Driver:        getEnvOrDefault("SOURCE_DRIVER", "rest"),
			RESTURL:       getEnvOrDefault("SOURCE_REST_URL", "http://localhost:8081"),
			APIKey:        os.Getenv("SOURCE_API_KEY"),
			PageSize:      pageSize,
			RatePerSecond: ratePerSecond,
			Timeout:       time.Duration(timeoutSec) * time.Second,
			SOAPURL:       os.Getenv("SOURCE_SOAP_URL"),
			SOAPUsername:  os.Getenv("SOURCE_SOAP_USERNAME"),
			SOAPCode1:     os.Getenv("SOURCE_SOAP_CODE1"),
			SOAPCode2:     os.Getenv("SOURCE_SOAP_CODE2"),
		},
		Target: TargetConfig{
			APIURL: getEnvOrDefault("TARGET_API_URL", "http://localhost:8080"),
			APIKey: os.Getenv("TARGET_API_KEY"),
			Memory: os.Getenv("TARGET_MEMORY") == "true",
		},
		Migration: MigrationConfig{
			Company:           os.Getenv("MIGRATION_COMPANY"),
			Workers:           workers,
			MaxRetries:        maxRetries,
			FailureThreshold:  failureThreshold,
			AllowBounded:      os.Getenv("MIGRATION_ALLOW_BOUNDED") == "true",
			AmountEpsilon:     getEnvOrDefault("AMOUNT_EPSILON", "0.01"),
			ProfilePath:       os.Getenv("MAPPING_PROFILE_PATH"),
			ReceivableAccount: getEnvOrDefault("RECEIVABLE_ACCOUNT", "Debtors"),
			PayableAccount:    getEnvOrDefault("PAYABLE_ACCOUNT", "Creditors"),
			ClearingAccount:   getEnvOrDefault("CLEARING_ACCOUNT", "Te Ontvangen Bedragen"),
			ClearingPatterns:  splitCSV(getEnvOrDefault("CLEARING_PATTERNS", "woocommerce,factuursturen")),
			SkipZeroAmountFor: splitCSV(os.Getenv("SKIP_ZERO_AMOUNT_FOR")),
		},
		StateDB: getEnvOrDefault("STATE_DB_PATH", "./ledgersync.db"),
		Debug:   os.Getenv("DEBUG") == "true",
	}

	return config, nil
}

// Validate checks that the fields the selected source driver needs are set.
func (c *Config) Validate() error {
	var missing []string

	if c.Migration.Company == "" {
		missing = append(missing, "MIGRATION_COMPANY")
	}

	switch c.Source.Driver {
	case "rest":
		if c.Source.RESTURL == "" {
			missing = append(missing, "SOURCE_REST_URL")
		}
		if c.Source.APIKey == "" {
			missing = append(missing, "SOURCE_API_KEY")
		}
	case "legacy":
		if c.Source.SOAPURL == "" {
			missing = append(missing, "SOURCE_SOAP_URL")
		}
		if c.Source.SOAPUsername == "" {
			missing = append(missing, "SOURCE_SOAP_USERNAME")
		}
		if c.Source.SOAPCode1 == "" {
			missing = append(missing, "SOURCE_SOAP_CODE1")
		}
		if c.Source.SOAPCode2 == "" {
			missing = append(missing, "SOURCE_SOAP_CODE2")
		}
	default:
		return fmt.Errorf("unknown SOURCE_DRIVER %q (expected rest or legacy)", c.Source.Driver)
	}

	if !c.Target.Memory && c.Target.APIKey == "" {
		missing = append(missing, "TARGET_API_KEY")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v\nPlease check your .env file or environment variables", missing)
	}

	return nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an int from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}

	return parsed, nil
}

// parseFloatEnv parses a float64 from an environment variable.
// Returns defaultValue if the environment variable is not set.
func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value for %s: %s", key, value)
	}

	return parsed, nil
}

// splitCSV splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
