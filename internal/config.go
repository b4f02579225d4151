package internal

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// EnvPrefix is prepended to every environment variable read by LoadFromEnv.
const EnvPrefix = "RBLXCLOUD_"

// Config holds application configuration
type Config struct {
	APIKey            string  `env:"API_KEY" hcl:"api_key,optional"`
	BaseURL           string  `env:"BASE_URL" hcl:"base_url,optional"`
	Timeout           int     `env:"TIMEOUT" hcl:"timeout,optional"`
	MaxRetries        int     `env:"MAX_RETRIES" hcl:"max_retries,optional"`
	RetryIntervalMs   int     `env:"RETRY_INTERVAL_MS" hcl:"retry_interval_ms,optional"`
	RequestsPerSecond float64 `env:"RATE" hcl:"rate,optional"`
	ProxyURL          string  `env:"PROXY" hcl:"proxy,optional"`
	OutputFormat      string  `env:"OUTPUT" hcl:"output,optional"`

	// OAuth2 application
	OAuth2ClientID     string `env:"OAUTH2_CLIENT_ID" hcl:"oauth2_client_id,optional"`
	OAuth2ClientSecret string `env:"OAUTH2_CLIENT_SECRET" hcl:"oauth2_client_secret,optional"`
	OAuth2RedirectURI  string `env:"OAUTH2_REDIRECT_URI" hcl:"oauth2_redirect_uri,optional"`

	// Webhook receiver
	WebhookSecret string `env:"WEBHOOK_SECRET" hcl:"webhook_secret,optional"`
	WebhookAddr   string `env:"WEBHOOK_ADDR" hcl:"webhook_addr,optional"`

	// Logging configuration
	LogLevel    string `env:"LOG_LEVEL" hcl:"log_level,optional"`
	EnableDebug bool   `env:"DEBUG" hcl:"debug,optional"`
	QuietMode   bool   `env:"QUIET" hcl:"quiet,optional"`
	LogFile     string `env:"LOG_FILE" hcl:"log_file,optional"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "https://apis.roblox.com/",
		Timeout:           30,
		MaxRetries:        2,
		RetryIntervalMs:   1000,
		RequestsPerSecond: 0,
		OutputFormat:      "json",
		WebhookAddr:       ":8080",

		LogLevel:    "info",
		EnableDebug: false,
		QuietMode:   false,
		LogFile:     "", // Empty means stderr
	}
}

// LoadFile overlays values from an HCL configuration file. Attributes that are
// absent from the file keep their current value.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if err := hclsimple.DecodeFile(path, nil, c); err != nil {
		return NewValidationErrorWithValue("config", "failed to decode configuration file", path).
			WithSource(SourceConfigFile).
			WithCause(err).
			WithSuggestion("Check the file is valid HCL with attributes such as api_key = \"...\"")
	}
	return nil
}

// LoadFromEnv loads configuration from RBLXCLOUD_* environment variables
func (c *Config) LoadFromEnv() error {
	return env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix})
}

// ValidateConfig validates the configuration values and reports every problem found
func (c *Config) ValidateConfig() error {
	var result *multierror.Error

	if c.Timeout < 1 {
		result = multierror.Append(result, NewValidationErrorWithValue("timeout", "must be > 0", c.Timeout))
	}

	if c.MaxRetries < 0 {
		result = multierror.Append(result, NewValidationErrorWithValue("max_retries", "must be >= 0", c.MaxRetries))
	}

	if c.RetryIntervalMs < 0 {
		result = multierror.Append(result, NewValidationErrorWithValue("retry_interval_ms", "must be >= 0", c.RetryIntervalMs))
	}

	if c.RequestsPerSecond < 0 {
		result = multierror.Append(result, NewValidationErrorWithValue("rate", "must be >= 0", c.RequestsPerSecond))
	}

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		result = multierror.Append(result, NewValidationErrorWithValue("base_url", "must be an absolute URL", c.BaseURL))
	}

	if c.ProxyURL != "" {
		if err := validateProxyScheme(c.ProxyURL); err != nil {
			result = multierror.Append(result, NewValidationErrorWithValue("proxy", err.Error(), c.ProxyURL).
				WithSuggestion("Use formats like http://proxy:8080 or socks5://proxy:1080"))
		}
	}

	switch strings.ToLower(c.OutputFormat) {
	case "json", "yaml":
	default:
		result = multierror.Append(result, NewValidationErrorWithValue("output", "must be json or yaml", c.OutputFormat))
	}

	return result.ErrorOrNil()
}

func validateProxyScheme(proxyURL string) error {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
		return nil
	default:
		return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
}
