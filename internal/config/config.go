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
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Twilio      TwilioConfig
	Transfer    TransferConfig
	ToolCall    ToolCallConfig
	Callback    CallbackConfig
	Insight     InsightConfig
	Correlation CorrelationConfig
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

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration

	// WebhookToken authenticates inbound platform webhooks (static bearer).
	WebhookToken string
}

// TwilioConfig authenticates carrier API calls. Empty credentials leave
// the process on the no-op carrier (useful locally; transfers are logged
// but no leg is redirected).
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
}

// TransferConfig describes the client account the transfer router works
// against.
type TransferConfig struct {
	// AircallSIPNumber is the client's own receiving-platform number;
	// transfers to it go over SIP instead of a PSTN dial.
	AircallSIPNumber string
	Region           string
	TrunkOverride    string
	ClaimTTL         time.Duration
}

type ToolCallConfig struct {
	// MaxRetries is the default retry budget stamped on new log entries.
	MaxRetries int
}

type CallbackConfig struct {
	// Endpoint receives queued callback requests; empty disables delivery
	// (requests still accumulate for the ops API).
	Endpoint      string
	Token         string
	SweepInterval time.Duration
	BatchSize     int
	MaxRetries    int
	DeliveryPause time.Duration
}

type InsightConfig struct {
	// Window is how far back a transfer stays matchable for an inbound
	// pre-routing query.
	Window   time.Duration
	Deadline time.Duration

	// APIBase/APIToken configure card delivery to the receiving platform;
	// empty means cards are skipped but routing decisions still go out.
	APIBase  string
	APIToken string

	DefaultTargetType string
	DefaultTargetID   string
}

type CorrelationConfig struct {
	// RecencyWindow bounds the caller-number fallback during degraded
	// identifier resolution.
	RecencyWindow time.Duration
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
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.WebhookToken = os.Getenv("WEBHOOK_TOKEN")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")

	c.Transfer.AircallSIPNumber = strings.TrimSpace(os.Getenv("TRANSFER_AIRCALL_NUMBER"))
	c.Transfer.Region = strings.TrimSpace(os.Getenv("TRANSFER_REGION"))
	c.Transfer.TrunkOverride = strings.TrimSpace(os.Getenv("TRANSFER_TRUNK"))
	c.Transfer.ClaimTTL = mustDuration("TRANSFER_CLAIM_TTL")

	c.ToolCall.MaxRetries = optionalInt("TOOLCALL_MAX_RETRIES")

	c.Callback.Endpoint = strings.TrimSpace(os.Getenv("CALLBACK_ENDPOINT"))
	c.Callback.Token = os.Getenv("CALLBACK_TOKEN")
	c.Callback.SweepInterval = mustDuration("CALLBACK_SWEEP_INTERVAL")
	c.Callback.BatchSize = optionalInt("CALLBACK_BATCH_SIZE")
	c.Callback.MaxRetries = optionalInt("CALLBACK_MAX_RETRIES")
	c.Callback.DeliveryPause = mustDuration("CALLBACK_DELIVERY_PAUSE")

	c.Insight.Window = mustDuration("INSIGHT_WINDOW")
	c.Insight.Deadline = mustDuration("INSIGHT_DEADLINE")
	c.Insight.APIBase = strings.TrimSpace(os.Getenv("INSIGHT_API_BASE"))
	c.Insight.APIToken = os.Getenv("INSIGHT_API_TOKEN")
	c.Insight.DefaultTargetType = strings.TrimSpace(os.Getenv("INSIGHT_DEFAULT_TARGET_TYPE"))
	c.Insight.DefaultTargetID = strings.TrimSpace(os.Getenv("INSIGHT_DEFAULT_TARGET_ID"))

	c.Correlation.RecencyWindow = mustDuration("CORRELATION_RECENCY_WINDOW")

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

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.WebhookToken == "" {
		errs = append(errs, errors.New("WEBHOOK_TOKEN is required"))
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
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.Twilio.AccountSID != "" && c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required when TWILIO_ACCOUNT_SID is set"))
	}

	if c.Transfer.Region != "" && !isValidRegion(c.Transfer.Region) {
		errs = append(errs, fmt.Errorf("TRANSFER_REGION must be one of americas, europe, asia-pacific, got %q", c.Transfer.Region))
	}
	if c.Transfer.ClaimTTL <= 0 {
		c.Transfer.ClaimTTL = 2 * time.Minute
	}

	if c.ToolCall.MaxRetries <= 0 {
		c.ToolCall.MaxRetries = 3
	}

	if c.Callback.Endpoint != "" && c.Callback.Token == "" {
		errs = append(errs, errors.New("CALLBACK_TOKEN is required when CALLBACK_ENDPOINT is set"))
	}
	if c.Callback.SweepInterval <= 0 {
		c.Callback.SweepInterval = 30 * time.Second
	}
	if c.Callback.BatchSize <= 0 {
		c.Callback.BatchSize = 20
	}
	if c.Callback.MaxRetries <= 0 {
		c.Callback.MaxRetries = 3
	}
	if c.Callback.DeliveryPause < 0 {
		errs = append(errs, errors.New("CALLBACK_DELIVERY_PAUSE must not be negative"))
	}

	if c.Insight.Window <= 0 {
		c.Insight.Window = 60 * time.Second
	}
	if c.Insight.Deadline <= 0 {
		c.Insight.Deadline = 2500 * time.Millisecond
	}
	if c.Insight.APIBase != "" && c.Insight.APIToken == "" {
		errs = append(errs, errors.New("INSIGHT_API_TOKEN is required when INSIGHT_API_BASE is set"))
	}
	if c.Insight.DefaultTargetType == "" {
		c.Insight.DefaultTargetType = "team"
	}

	if c.Correlation.RecencyWindow <= 0 {
		c.Correlation.RecencyWindow = 5 * time.Minute
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
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
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

func optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func mustDuration(key string) time.Duration {
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

func isValidRegion(v string) bool {
	switch v {
	case "americas", "europe", "asia-pacific":
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
