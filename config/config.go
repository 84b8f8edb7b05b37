package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the aibox service
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`
	AWS      AWSConfig      `mapstructure:"aws"`
	Bedrock  BedrockConfig  `mapstructure:"bedrock"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Debug      bool   `mapstructure:"debug"`
	SSLEnabled bool   `mapstructure:"ssl_enabled"`
	PidFile    string `mapstructure:"pid_file"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", s.Port)
	}
	return nil
}

// CORSConfig contains cross-origin settings applied to the API group
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
	AllowMethods []string `mapstructure:"allow_methods"`
	AllowHeaders []string `mapstructure:"allow_headers"`
}

// SecurityConfig contains app-side token settings. Credential checks are
// delegated to Cognito; the secret here only signs the session JWT.
type SecurityConfig struct {
	SecretKey       string        `mapstructure:"secret_key"`
	TokenExpiration time.Duration `mapstructure:"token_expiration"`
}

func (s SecurityConfig) Validate() error {
	if strings.TrimSpace(s.SecretKey) == "" {
		return fmt.Errorf("security.secret_key required (SECRET_KEY)")
	}
	if s.TokenExpiration <= 0 {
		return fmt.Errorf("security.token_expiration must be > 0")
	}
	return nil
}

// AWSConfig contains region and Cognito identity settings
type AWSConfig struct {
	DefaultRegion string `mapstructure:"default_region"`
	UserPoolID    string `mapstructure:"user_pool_id"`
	ClientID      string `mapstructure:"client_id"`
}

func (a AWSConfig) Validate() error {
	if strings.TrimSpace(a.UserPoolID) == "" {
		return fmt.Errorf("aws.user_pool_id required (USER_POOL_ID)")
	}
	if strings.TrimSpace(a.ClientID) == "" {
		return fmt.Errorf("aws.client_id required (CLIENT_ID)")
	}
	return nil
}

// BedrockConfig contains the Bedrock runtime settings
type BedrockConfig struct {
	Region     string `mapstructure:"region"`
	AssumeRole string `mapstructure:"assume_role"`
}

func (b BedrockConfig) Validate() error {
	if strings.TrimSpace(b.Region) == "" {
		return fmt.Errorf("bedrock.region required (BEDROCK_REGION)")
	}
	return nil
}

// GeminiConfig points at the Secrets Manager secret carrying the API key
type GeminiConfig struct {
	SecretID string `mapstructure:"secret_id"`
}

// DatabaseConfig names the DynamoDB tables and the session retention window
type DatabaseConfig struct {
	SettingTable  string `mapstructure:"setting_table"`
	SessionTable  string `mapstructure:"session_table"`
	RetentionDays int    `mapstructure:"retention_days"`
}

func (d DatabaseConfig) Validate() error {
	if strings.TrimSpace(d.SettingTable) == "" {
		return fmt.Errorf("database.setting_table required (SETTING_TABLE)")
	}
	if strings.TrimSpace(d.SessionTable) == "" {
		return fmt.Errorf("database.session_table required (SESSION_TABLE)")
	}
	if d.RetentionDays <= 0 {
		return fmt.Errorf("database.retention_days must be > 0 (RETENTION_DAYS)")
	}
	return nil
}

// Retention converts the configured retention window to a duration.
func (d DatabaseConfig) Retention() time.Duration {
	return time.Duration(d.RetentionDays) * 24 * time.Hour
}

// SessionConfig selects the session store backend
type SessionConfig struct {
	Backend string      `mapstructure:"backend"` // dynamodb, redis, inmemory
	Redis   RedisConfig `mapstructure:"redis"`
}

func (s SessionConfig) Validate() error {
	switch s.Backend {
	case "dynamodb", "inmemory":
		return nil
	case "redis":
		return s.Redis.Validate()
	default:
		return fmt.Errorf("session.backend must be dynamodb, redis or inmemory, got %q", s.Backend)
	}
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("session.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("session.redis.port required")
	}
	return nil
}

// ChatConfig tunes the conversation pipeline
type ChatConfig struct {
	TokenBudget int           `mapstructure:"token_budget"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	TopP        float64       `mapstructure:"top_p"`
	TopK        int           `mapstructure:"top_k"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Normalize applies defaults for unset chat values.
func (c ChatConfig) Normalize() ChatConfig {
	if c.TokenBudget <= 0 {
		c.TokenBudget = 8192
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.9
	}
	if c.TopP <= 0 {
		c.TopP = 0.99
	}
	if c.TopK <= 0 {
		c.TopK = 200
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	return c
}

// StorageConfig contains local file storage settings for generated artifacts
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LoadConfig loads config from an optional file, with environment overrides.
// Both AIBOX_-prefixed keys and the bare legacy names (SERVER_PORT, SECRET_KEY,
// SESSION_TABLE, ...) are honoured so existing deployments keep working.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	} else {
		v.SetConfigFile(path)
	}

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.ssl_enabled", false)
	v.SetDefault("server.pid_file", "aibox.pid")
	v.SetDefault("cors.allow_origins", []string{"*"})
	v.SetDefault("cors.allow_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allow_headers", []string{"*"})
	v.SetDefault("security.token_expiration", time.Hour)
	v.SetDefault("aws.default_region", "ap-southeast-1")
	v.SetDefault("bedrock.region", "us-west-2")
	v.SetDefault("database.setting_table", "aibox_setting")
	v.SetDefault("database.session_table", "aibox_session")
	v.SetDefault("database.retention_days", 30)
	v.SetDefault("session.backend", "dynamodb")
	v.SetDefault("session.redis.timeout", 5*time.Second)
	v.SetDefault("storage.data_dir", "./data")

	v.SetEnvPrefix("AIBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy bare environment names from the original deployment surface.
	for key, env := range map[string]string{
		"server.host":               "SERVER_HOST",
		"server.port":               "SERVER_PORT",
		"server.debug":              "DEBUG",
		"server.ssl_enabled":        "SSL_ENABLED",
		"cors.allow_origins":        "CORS_ORIGINS",
		"cors.allow_methods":        "CORS_METHODS",
		"cors.allow_headers":        "CORS_HEADERS",
		"security.secret_key":       "SECRET_KEY",
		"security.token_expiration": "TOKEN_EXPIRATION",
		"aws.default_region":        "DEFAULT_REGION",
		"aws.user_pool_id":          "USER_POOL_ID",
		"aws.client_id":             "CLIENT_ID",
		"bedrock.region":            "BEDROCK_REGION",
		"bedrock.assume_role":       "BEDROCK_ASSUME_ROLE",
		"gemini.secret_id":          "GEMINI_SECRET_ID",
		"database.setting_table":    "SETTING_TABLE",
		"database.session_table":    "SESSION_TABLE",
		"database.retention_days":   "RETENTION_DAYS",
		"session.backend":           "SESSION_BACKEND",
		"session.redis.host":        "REDIS_HOST",
		"session.redis.port":        "REDIS_PORT",
		"session.redis.password":    "REDIS_PASSWORD",
	} {
		_ = v.BindEnv(key, "AIBOX_"+env, env)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// env-only deployments run without a config file
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Chat = cfg.Chat.Normalize()

	for _, validate := range []func() error{
		cfg.Server.Validate,
		cfg.Security.Validate,
		cfg.AWS.Validate,
		cfg.Bedrock.Validate,
		cfg.Database.Validate,
		cfg.Session.Validate,
	} {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
