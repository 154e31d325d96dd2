package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Name: "callbrief", SSLMode: "disable"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Hour},
		Storage: StorageConfig{
			Bucket: "callbrief-audio",
			Region: "eu-north-1",
		},
	}
}

func TestValidate_OK(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Summarization.DefaultLanguage != "he" {
		t.Fatalf("expected default summary language he, got %q", c.Summarization.DefaultLanguage)
	}
	if c.Upload.MaxUploadMB != 500 {
		t.Fatalf("expected default upload cap 500, got %d", c.Upload.MaxUploadMB)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"APP_ENV", "DB_HOST", "REDIS_HOST", "JWT_SECRET", "S3_BUCKET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.DB.SSLMode = ""
	c.Auth.JWTIssuer = "callbrief"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error, got: %v", err)
	}
}

func TestFormatAllowed(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !c.FormatAllowed("audio/mpeg") {
		t.Fatalf("expected audio/mpeg to be allowed")
	}
	if c.FormatAllowed("application/pdf") {
		t.Fatalf("expected application/pdf to be rejected")
	}
}

func TestPostgresDSN(t *testing.T) {
	c := validConfig()
	dsn := c.PostgresDSN()
	if !strings.Contains(dsn, "dbname=callbrief") || !strings.Contains(dsn, "sslmode=disable") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}
