package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// GoogleCredentials represents the structure of Google OAuth credentials JSON file.
type GoogleCredentials struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"installed"`
	Web struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// LoadGoogleCredentials loads Google OAuth credentials from a JSON file.
func LoadGoogleCredentials(path string) (clientID, clientSecret string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds GoogleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", "", fmt.Errorf("failed to parse credentials file: %w", err)
	}

	// Try "installed" first (for desktop apps), then "web"
	if creds.Installed.ClientID != "" {
		return creds.Installed.ClientID, creds.Installed.ClientSecret, nil
	}
	if creds.Web.ClientID != "" {
		return creds.Web.ClientID, creds.Web.ClientSecret, nil
	}

	return "", "", fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
}

// Token store kinds.
const (
	TokenStoreFile   = "file"
	TokenStoreSQLite = "sqlite"
)

// Defaults applied by LoadConfig.
const (
	DefaultEventsPath         = "scraped_events"
	DefaultTokenStore         = TokenStoreFile
	DefaultRefreshLeadMinutes = 5
	DefaultTimeZone           = "America/Chicago"
	DefaultCalendarID         = "primary"
	DefaultBackendURL         = "http://127.0.0.1:5000"
)

// Config holds the configuration for the event sync tool.
type Config struct {
	// Realtime database holding the scraped events
	DatabaseURL  string `json:"database_url,omitempty" yaml:"database_url,omitempty"`
	EventsPath   string `json:"events_path,omitempty" yaml:"events_path,omitempty"`
	DatabaseAuth string `json:"database_auth,omitempty" yaml:"database_auth,omitempty"`

	// Google Calendar
	GoogleCredentialsPath string `json:"google_credentials_path,omitempty" yaml:"google_credentials_path,omitempty"`
	TokenStore            string `json:"token_store,omitempty" yaml:"token_store,omitempty"`           // "file" or "sqlite"
	TokenStorePath        string `json:"token_store_path,omitempty" yaml:"token_store_path,omitempty"` // Where the token pair is persisted
	RefreshLeadMinutes    int    `json:"refresh_lead_minutes,omitempty" yaml:"refresh_lead_minutes,omitempty"`
	CalendarID            string `json:"calendar_id,omitempty" yaml:"calendar_id,omitempty"`

	TimeZone   string `json:"time_zone,omitempty" yaml:"time_zone,omitempty"`     // IANA zone used for display and drafts
	BackendURL string `json:"backend_url,omitempty" yaml:"backend_url,omitempty"` // Email extraction backend
}

// Flags carries command-line overrides. Empty values are ignored.
type Flags struct {
	DatabaseURL           string
	GoogleCredentialsPath string
	TokenStore            string
	TokenStorePath        string
	TimeZone              string
	BackendURL            string
}

// LoadConfigFromFile loads configuration from a JSON or YAML file. Files
// ending in .yaml or .yml are read as YAML.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Values needed only by some commands are checked by RequireDatabase and
// RequireCalendar.
func LoadConfig(configFile string, flags Flags) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	envStrings := []struct {
		name   string
		target *string
	}{
		{"EVENTS_DATABASE_URL", &config.DatabaseURL},
		{"EVENTS_PATH", &config.EventsPath},
		{"EVENTS_DATABASE_AUTH", &config.DatabaseAuth},
		{"GOOGLE_CREDENTIALS_PATH", &config.GoogleCredentialsPath},
		{"TOKEN_STORE", &config.TokenStore},
		{"TOKEN_STORE_PATH", &config.TokenStorePath},
		{"EVENTS_TIME_ZONE", &config.TimeZone},
		{"CALENDAR_ID", &config.CalendarID},
		{"EMAIL_BACKEND_URL", &config.BackendURL},
	}
	for _, env := range envStrings {
		if value := os.Getenv(env.name); value != "" {
			*env.target = value
		}
	}
	if lead := os.Getenv("REFRESH_LEAD_MINUTES"); lead != "" {
		minutes, err := strconv.Atoi(lead)
		if err != nil {
			return nil, fmt.Errorf("invalid REFRESH_LEAD_MINUTES value: %w", err)
		}
		config.RefreshLeadMinutes = minutes
	}

	// Step 3: Override with command-line flags (highest priority)
	if flags.DatabaseURL != "" {
		config.DatabaseURL = flags.DatabaseURL
	}
	if flags.GoogleCredentialsPath != "" {
		config.GoogleCredentialsPath = flags.GoogleCredentialsPath
	}
	if flags.TokenStore != "" {
		config.TokenStore = flags.TokenStore
	}
	if flags.TokenStorePath != "" {
		config.TokenStorePath = flags.TokenStorePath
	}
	if flags.TimeZone != "" {
		config.TimeZone = flags.TimeZone
	}
	if flags.BackendURL != "" {
		config.BackendURL = flags.BackendURL
	}

	// Step 4: Apply defaults and validate
	if config.EventsPath == "" {
		config.EventsPath = DefaultEventsPath
	}
	if config.TokenStore == "" {
		config.TokenStore = DefaultTokenStore
	}
	if config.TokenStore != TokenStoreFile && config.TokenStore != TokenStoreSQLite {
		return nil, fmt.Errorf("token_store must be 'file' or 'sqlite', got '%s'", config.TokenStore)
	}
	if config.TokenStorePath == "" {
		path, err := defaultTokenStorePath(config.TokenStore)
		if err != nil {
			return nil, err
		}
		config.TokenStorePath = path
	}
	if config.RefreshLeadMinutes == 0 {
		config.RefreshLeadMinutes = DefaultRefreshLeadMinutes
	}
	if config.RefreshLeadMinutes < 0 {
		return nil, fmt.Errorf("refresh_lead_minutes must be positive, got %d", config.RefreshLeadMinutes)
	}
	if config.TimeZone == "" {
		config.TimeZone = DefaultTimeZone
	}
	if _, err := time.LoadLocation(config.TimeZone); err != nil {
		return nil, fmt.Errorf("invalid time_zone '%s': %w", config.TimeZone, err)
	}
	if config.CalendarID == "" {
		config.CalendarID = DefaultCalendarID
	}
	if config.BackendURL == "" {
		config.BackendURL = DefaultBackendURL
	}

	return &config, nil
}

// defaultTokenStorePath places the token store under the user config dir.
func defaultTokenStorePath(kind string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("token_store_path must be provided: %w", err)
	}
	name := "tokens.json"
	if kind == TokenStoreSQLite {
		name = "tokens.db"
	}
	return filepath.Join(dir, "eventsync", name), nil
}

// RequireDatabase checks the settings needed to fetch events.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url must be provided via --database-url flag, EVENTS_DATABASE_URL environment variable, or config file")
	}
	return nil
}

// RequireCalendar checks the settings needed to talk to Google Calendar.
func (c *Config) RequireCalendar() error {
	if c.GoogleCredentialsPath == "" {
		return fmt.Errorf("google_credentials_path must be provided via --google-credentials-path flag, GOOGLE_CREDENTIALS_PATH environment variable, or config file")
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone: %w", err)
	}
	return loc, nil
}

// RefreshLead is how long before expiry the calendar token is renewed.
func (c *Config) RefreshLead() time.Duration {
	return time.Duration(c.RefreshLeadMinutes) * time.Minute
}
