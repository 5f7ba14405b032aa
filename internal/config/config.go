package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Alerting AlertingConfig
	Webhook  WebhookConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional: an empty Host disables the event dedup cache and
// the pipeline falls back on the store's unique constraints alone.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// BootstrapSecret is exchanged for dashboard tokens; there is no user
	// database behind this internal tool.
	BootstrapSecret string
}

type AlertingConfig struct {
	SlackBotToken  string
	SlackChannelID string

	// SlowThreshold flags a single ingest call that takes longer than this.
	SlowThreshold time.Duration
	// IdleThreshold flags a stream that produced no events for this long.
	IdleThreshold time.Duration

	// Active hours gate for performance alerts, in local hours [start, end).
	ActiveStartHour int
	ActiveEndHour   int
	Timezone        string
}

type WebhookConfig struct {
	// RawLogDir, when set, receives one JSON dump file per inbound event.
	// Best-effort debugging aid; failures never block ingestion.
	RawLogDir string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = optDuration("JWT_REFRESH_TTL")
	c.Auth.BootstrapSecret = os.Getenv("AUTH_BOOTSTRAP_SECRET")

	c.Alerting.SlackBotToken = os.Getenv("SLACK_BOT_TOKEN")
	c.Alerting.SlackChannelID = strings.TrimSpace(os.Getenv("SLACK_CHANNEL_ID"))
	c.Alerting.SlowThreshold = optDuration("ALERT_SLOW_THRESHOLD")
	c.Alerting.IdleThreshold = optDuration("ALERT_IDLE_THRESHOLD")
	c.Alerting.ActiveStartHour = optInt("ALERT_ACTIVE_START_HOUR", -1)
	c.Alerting.ActiveEndHour = optInt("ALERT_ACTIVE_END_HOUR", -1)
	c.Alerting.Timezone = strings.TrimSpace(os.Getenv("ALERT_TIMEZONE"))

	c.Webhook.RawLogDir = strings.TrimSpace(os.Getenv("WEBHOOK_RAW_LOG_DIR"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.BootstrapSecret == "" {
		errs = append(errs, errors.New("AUTH_BOOTSTRAP_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	// Slack delivery is optional (token unset disables it), but a token
	// without a channel is a misconfiguration.
	if c.Alerting.SlackBotToken != "" && c.Alerting.SlackChannelID == "" {
		errs = append(errs, errors.New("SLACK_CHANNEL_ID is required when SLACK_BOT_TOKEN is set"))
	}
	if c.Alerting.SlowThreshold <= 0 {
		c.Alerting.SlowThreshold = 2 * time.Second
	}
	if c.Alerting.IdleThreshold <= 0 {
		c.Alerting.IdleThreshold = 15 * time.Minute
	}
	if c.Alerting.ActiveStartHour < 0 {
		c.Alerting.ActiveStartHour = 9
	}
	if c.Alerting.ActiveEndHour < 0 {
		c.Alerting.ActiveEndHour = 17
	}
	if c.Alerting.ActiveStartHour > 23 || c.Alerting.ActiveEndHour > 24 ||
		c.Alerting.ActiveStartHour >= c.Alerting.ActiveEndHour {
		errs = append(errs, fmt.Errorf("alert active hours window [%d, %d) is invalid",
			c.Alerting.ActiveStartHour, c.Alerting.ActiveEndHour))
	}
	if c.Alerting.Timezone == "" {
		c.Alerting.Timezone = "Asia/Kolkata"
	}
	if _, err := time.LoadLocation(c.Alerting.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("ALERT_TIMEZONE %q is not a valid IANA zone", c.Alerting.Timezone))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// AlertLocation resolves the alerting timezone; Validate() has already
// checked the name, so failures here fall back to UTC.
func (c Config) AlertLocation() *time.Location {
	loc, err := time.LoadLocation(c.Alerting.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
