package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration, cron expressions with a seconds field
	Schedule              string
	DeadlineCheckSchedule string
	TimeZone              string

	// Snapshot storage: Azure when an account is set, local directory otherwise
	StorageAccount   string
	StorageContainer string
	StorageDir       string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Platforms to monitor, read from PlatformsFile and narrowed by EnabledPlatforms
	PlatformsFile    string
	EnabledPlatforms []string
	Platforms        []PlatformConfig
	CredentialPrefix string

	// Run behaviour
	MaxConcurrentRuns     int
	RunTimeout            time.Duration
	ApproachingWindowDays int
	ReminderWindowDays    int

	// Browser steps
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	StepTimeout      time.Duration
	StepsPerSecond   float64
	RecoveryAttempts int
	Headless         bool
	ChromePath       string
	UserAgent        string
}

// Load loads configuration from environment variables and the platforms file
func Load() (*Config, error) {
	return load(true)
}

// LoadLocal is Load for one-shot command line use, where no notifier has to be configured
func LoadLocal() (*Config, error) {
	return load(false)
}

func load(requireNotifier bool) (*Config, error) {
	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		Debug:                 getBoolEnv("DEBUG", false),
		Schedule:              getEnv("SCHEDULE", "0 0 7 * * *"),
		DeadlineCheckSchedule: getEnv("DEADLINE_CHECK_SCHEDULE", "0 0 */6 * * *"),
		TimeZone:              getEnv("TIMEZONE", "UTC"),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "referee-monitor"),
		StorageDir:       getEnv("STORAGE_DIR", "data"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		PlatformsFile:    getEnv("PLATFORMS_FILE", "platforms.yaml"),
		EnabledPlatforms: getSliceEnv("PLATFORMS", nil),
		CredentialPrefix: getEnv("CREDENTIAL_PREFIX", "REFMON_"),

		MaxConcurrentRuns:     getIntEnv("MAX_CONCURRENT_RUNS", 2),
		RunTimeout:            getDurationEnv("RUN_TIMEOUT", 45*time.Minute),
		ApproachingWindowDays: getIntEnv("APPROACHING_WINDOW_DAYS", 7),
		ReminderWindowDays:    getIntEnv("REMINDER_WINDOW_DAYS", 7),

		MaxAttempts:      getIntEnv("STEP_MAX_ATTEMPTS", 3),
		InitialBackoff:   getDurationEnv("STEP_INITIAL_BACKOFF", 500*time.Millisecond),
		MaxBackoff:       getDurationEnv("STEP_MAX_BACKOFF", 5*time.Second),
		StepTimeout:      getDurationEnv("STEP_TIMEOUT", 30*time.Second),
		StepsPerSecond:   getFloatEnv("STEPS_PER_SECOND", 0),
		RecoveryAttempts: getIntEnv("RECOVERY_ATTEMPTS", 2),
		Headless:         getBoolEnv("HEADLESS", true),
		ChromePath:       getEnv("CHROME_PATH", ""),
		UserAgent:        getEnv("USER_AGENT", ""),
	}

	platforms, err := LoadPlatforms(cfg.PlatformsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load platforms: %w", err)
	}
	if cfg.Platforms, err = Select(platforms, cfg.EnabledPlatforms); err != nil {
		return nil, err
	}

	if err := cfg.validate(requireNotifier); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate(requireNotifier bool) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Schedule); err != nil {
		return fmt.Errorf("SCHEDULE is not a valid cron expression: %w", err)
	}
	if c.DeadlineCheckSchedule != "" {
		if _, err := parser.Parse(c.DeadlineCheckSchedule); err != nil {
			return fmt.Errorf("DEADLINE_CHECK_SCHEDULE is not a valid cron expression: %w", err)
		}
	}

	if requireNotifier && c.TeamsWebhookURL == "" && c.NotificationEmail == "" {
		return fmt.Errorf("at least one notification method must be configured (TEAMS_WEBHOOK_URL or NOTIFICATION_EMAIL)")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	if c.MaxConcurrentRuns < 1 {
		return fmt.Errorf("MAX_CONCURRENT_RUNS must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("STEP_MAX_ATTEMPTS must be at least 1")
	}
	if c.ApproachingWindowDays < 0 || c.ReminderWindowDays < 0 {
		return fmt.Errorf("window days must not be negative")
	}

	return nil
}

// Location returns the configured schedule time zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
