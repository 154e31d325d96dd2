package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the api and worker processes.
// All values come from env (optionally seeded from a .env file).
// It is constructed once in main and passed by reference into constructors;
// no package reads raw environment variables outside Load.
type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Storage       StorageConfig
	Transcription TranscriptionConfig
	Summarization SummarizationConfig
	Email         EmailConfig
	WhatsApp      WhatsAppConfig
	Upload        UploadConfig
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

	// SSLMode accepts: disable, require, verify-ca, verify-full
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
}

type StorageConfig struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint overrides the S3 endpoint (minio, localstack). Empty for AWS.
	Endpoint string
}

type TranscriptionConfig struct {
	APIKey string
	Model  string

	// BaseURL overrides the provider endpoint, mainly for tests.
	BaseURL string
}

type SummarizationConfig struct {
	APIKey  string
	Model   string
	BaseURL string

	// DefaultLanguage is the last-resort summary language when neither the
	// request nor the transcript carries a usable language code.
	DefaultLanguage string
}

type EmailConfig struct {
	APIKey      string
	FromAddress string
}

type WhatsAppConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type UploadConfig struct {
	MaxUploadMB    int
	AllowedFormats []string
}

var defaultAllowedFormats = []string{
	"audio/mpeg",
	"audio/mp4",
	"video/mp4",
	"audio/wav",
	"audio/x-m4a",
	"audio/ogg",
	"audio/webm",
	"audio/flac",
	"audio/x-flac",
}

func Load() (Config, error) {
	// Best-effort .env load for local development; real deployments inject env.
	_ = godotenv.Load()

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
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")

	c.Storage.Bucket = strings.TrimSpace(os.Getenv("S3_BUCKET"))
	c.Storage.Region = strings.TrimSpace(os.Getenv("AWS_REGION"))
	c.Storage.AccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	c.Storage.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	c.Storage.Endpoint = strings.TrimSpace(os.Getenv("S3_ENDPOINT"))

	c.Transcription.APIKey = os.Getenv("DEEPGRAM_API_KEY")
	c.Transcription.Model = strings.TrimSpace(os.Getenv("DEEPGRAM_MODEL"))
	c.Transcription.BaseURL = strings.TrimSpace(os.Getenv("DEEPGRAM_BASE_URL"))

	c.Summarization.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.Summarization.Model = strings.TrimSpace(os.Getenv("CLAUDE_MODEL"))
	c.Summarization.BaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	c.Summarization.DefaultLanguage = strings.TrimSpace(os.Getenv("SUMMARY_DEFAULT_LANGUAGE"))

	c.Email.APIKey = os.Getenv("SENDGRID_API_KEY")
	c.Email.FromAddress = strings.TrimSpace(os.Getenv("SENDGRID_FROM_EMAIL"))

	c.WhatsApp.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.WhatsApp.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.WhatsApp.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_WHATSAPP_NUMBER"))

	if v := strings.TrimSpace(os.Getenv("MAX_UPLOAD_MB")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("MAX_UPLOAD_MB must be an integer, got %q", v))
		} else {
			c.Upload.MaxUploadMB = n
		}
	}

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
	if c.IsProduction() && c.Auth.JWTIssuer == "" {
		errs = append(errs, errors.New("JWT_ISSUER is required in production"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 60 * time.Minute
	}

	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required"))
	}
	if c.Storage.Region == "" {
		errs = append(errs, errors.New("AWS_REGION is required"))
	}

	// Provider credentials stay optional at load time: the api process can run
	// without them, and the adapters report unconfigured providers themselves.
	if c.Transcription.Model == "" {
		c.Transcription.Model = "nova-3"
	}
	if c.Summarization.Model == "" {
		c.Summarization.Model = "claude-haiku-4-5-20251001"
	}
	if c.Summarization.DefaultLanguage == "" {
		c.Summarization.DefaultLanguage = "he"
	}

	if c.Upload.MaxUploadMB <= 0 {
		c.Upload.MaxUploadMB = 500
	}
	if len(c.Upload.AllowedFormats) == 0 {
		c.Upload.AllowedFormats = defaultAllowedFormats
	}

	return joinErrors(errs)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c *Config) PostgresDSN() string {
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

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxUploadMB) * 1024 * 1024
}

func (c *Config) FormatAllowed(contentType string) bool {
	for _, f := range c.Upload.AllowedFormats {
		if f == contentType {
			return true
		}
	}
	return false
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
