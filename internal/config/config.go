// Package config loads and validates the CalMirror YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// Workplace names the calendar whose events mirror fully visible.
	// Every other calendar mirrors as private busy blocks.
	// Defaults to "dooray".
	Workplace string `yaml:"workplace"`

	// Schedule is the cron expression for daemon mode. Defaults to every
	// five minutes.
	Schedule string `yaml:"schedule"`

	// Window bounds the events fetched and reconciled per run.
	Window WindowConfig `yaml:"window"`

	// Store selects and locates the mapping-store backend.
	Store StoreConfig `yaml:"store"`

	// Dooray configures the workplace calendar (REST + API token).
	Dooray DoorayConfig `yaml:"dooray"`

	// Google configures the Google calendar (OAuth2 refresh-token flow).
	Google GoogleConfig `yaml:"google"`

	// CalDAV configures the iCloud/CalDAV calendar (basic auth).
	CalDAV CalDAVConfig `yaml:"caldav"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// WindowConfig is the sync window in days around "now".
type WindowConfig struct {
	// DaysBack is how far into the past events are reconciled. Defaults to 7.
	DaysBack int `yaml:"days_back"`

	// DaysForward is how far into the future events are reconciled.
	// Defaults to 90.
	DaysForward int `yaml:"days_forward"`
}

// StoreConfig selects the mapping-store backend.
type StoreConfig struct {
	// Backend is "file" (single JSON document, the default) or "sqlite".
	Backend string `yaml:"backend"`

	// Path locates the store. Defaults to a fixed filename in the working
	// directory for the file backend and to
	// ~/.local/share/calmirror/mappings.db for sqlite.
	Path string `yaml:"path"`
}

// DoorayConfig holds the workplace calendar credentials.
type DoorayConfig struct {
	// BaseURL is the Dooray API origin. Defaults to "https://api.dooray.com".
	BaseURL string `yaml:"base_url"`

	// Token is the API token sent as "Authorization: dooray-api <token>".
	Token string `yaml:"token"`

	// CalendarID is the Dooray calendar to mirror.
	CalendarID string `yaml:"calendar_id"`
}

// GoogleConfig holds the Google Calendar OAuth2 credentials.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// RefreshToken is the long-lived token obtained during the one-time
	// consent flow; access tokens are minted from it as needed.
	RefreshToken string `yaml:"refresh_token"`

	// CalendarID is the Google calendar to mirror. Defaults to "primary".
	CalendarID string `yaml:"calendar_id"`
}

// CalDAVConfig holds the CalDAV collection credentials.
type CalDAVConfig struct {
	// URL is the calendar collection, e.g.
	// "https://caldav.icloud.com/123456789/calendars/home/".
	URL string `yaml:"url"`

	// Username and Password authenticate via HTTP basic auth. For iCloud
	// this is an app-specific password.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "calmirror".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/calmirror/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "calmirror", "config.yaml"), nil
}

// DefaultSQLitePath returns the default sqlite store path:
// ~/.local/share/calmirror/mappings.db.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "calmirror", "mappings.db"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required fields are present and well-formed, and
// applies defaults. A missing credential fails here, before any adapter is
// registered.
func (c *Config) validate() error {
	if c.Workplace == "" {
		c.Workplace = "dooray"
	}
	switch c.Workplace {
	case "dooray", "google", "icloud":
	default:
		return fmt.Errorf("workplace %q must be one of dooray, google, icloud", c.Workplace)
	}

	if c.Schedule == "" {
		c.Schedule = "*/5 * * * *"
	}

	if c.Window.DaysBack == 0 {
		c.Window.DaysBack = 7
	}
	if c.Window.DaysForward == 0 {
		c.Window.DaysForward = 90
	}
	if c.Window.DaysBack < 0 || c.Window.DaysForward < 0 {
		return fmt.Errorf("window days must not be negative")
	}

	switch c.Store.Backend {
	case "":
		c.Store.Backend = "file"
	case "file", "sqlite":
	default:
		return fmt.Errorf("store.backend %q must be \"file\" or \"sqlite\"", c.Store.Backend)
	}

	if c.Dooray.BaseURL == "" {
		c.Dooray.BaseURL = "https://api.dooray.com"
	}
	if err := checkHTTPURL("dooray.base_url", c.Dooray.BaseURL); err != nil {
		return err
	}
	if c.Dooray.Token == "" {
		return fmt.Errorf("dooray.token is required")
	}
	if c.Dooray.CalendarID == "" {
		return fmt.Errorf("dooray.calendar_id is required")
	}

	if c.Google.ClientID == "" {
		return fmt.Errorf("google.client_id is required")
	}
	if c.Google.ClientSecret == "" {
		return fmt.Errorf("google.client_secret is required")
	}
	if c.Google.RefreshToken == "" {
		return fmt.Errorf("google.refresh_token is required")
	}
	if c.Google.CalendarID == "" {
		c.Google.CalendarID = "primary"
	}

	if err := checkHTTPURL("caldav.url", c.CalDAV.URL); err != nil {
		return err
	}
	if c.CalDAV.Username == "" {
		return fmt.Errorf("caldav.username is required")
	}
	if c.CalDAV.Password == "" {
		return fmt.Errorf("caldav.password is required")
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}

func checkHTTPURL(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.ParseRequestURI(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s %q must be a valid http or https URL", field, value)
	}
	return nil
}
