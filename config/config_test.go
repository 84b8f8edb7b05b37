package config

import (
	"strings"
	"testing"
	"time"
)

// minimal env for a loadable config
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("USER_POOL_ID", "ap-southeast-1_abc123")
	t.Setenv("CLIENT_ID", "client-1")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Addr() != "localhost:8080" {
		t.Errorf("addr = %q", cfg.Server.Addr())
	}
	if cfg.Session.Backend != "dynamodb" {
		t.Errorf("backend = %q", cfg.Session.Backend)
	}
	if cfg.Database.Retention() != 30*24*time.Hour {
		t.Errorf("retention = %v", cfg.Database.Retention())
	}
	if cfg.Chat.MaxTokens != 4096 || cfg.Chat.TokenBudget != 8192 {
		t.Errorf("chat defaults not applied: %+v", cfg.Chat)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SESSION_TABLE", "custom_sessions")
	t.Setenv("AIBOX_BEDROCK_REGION", "eu-central-1")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Database.SessionTable != "custom_sessions" {
		t.Errorf("session table = %q", cfg.Database.SessionTable)
	}
	if cfg.Bedrock.Region != "eu-central-1" {
		t.Errorf("bedrock region = %q", cfg.Bedrock.Region)
	}
}

func TestLoadConfigMissingSecret(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	t.Setenv("USER_POOL_ID", "pool")
	t.Setenv("CLIENT_ID", "client")

	if _, err := LoadConfig(""); err == nil || !strings.Contains(err.Error(), "secret_key") {
		t.Fatalf("expected secret_key error, got %v", err)
	}
}

func TestLoadConfigRedisBackendNeedsHost(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SESSION_BACKEND", "redis")

	if _, err := LoadConfig(""); err == nil || !strings.Contains(err.Error(), "redis.host") {
		t.Fatalf("expected redis.host error, got %v", err)
	}

	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	if _, err := LoadConfig(""); err != nil {
		t.Fatalf("LoadConfig with redis env: %v", err)
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SESSION_BACKEND", "postgres")

	if _, err := LoadConfig(""); err == nil || !strings.Contains(err.Error(), "session.backend") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestChatConfigNormalize(t *testing.T) {
	c := ChatConfig{}.Normalize()
	if c.Temperature != 0.9 || c.TopP != 0.99 || c.TopK != 200 {
		t.Errorf("defaults: %+v", c)
	}
	custom := ChatConfig{MaxTokens: 100, Temperature: 0.2}.Normalize()
	if custom.MaxTokens != 100 || custom.Temperature != 0.2 {
		t.Errorf("explicit values overwritten: %+v", custom)
	}
}
