// Package config loads runtime settings from the environment and an optional
// YAML or TOML file named by LETTER_CONFIG.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration of the backend.
type Config struct {
	DevMode     bool   `yaml:"dev_mode" toml:"dev_mode"`
	LogLevel    string `yaml:"log_level" toml:"log_level" validate:"oneof=debug info warn error"`
	HumanLogs   bool   `yaml:"human_logs" toml:"human_logs"`
	Addr        string `yaml:"addr" toml:"addr" validate:"required"`
	FrontendURL string `yaml:"frontend_url" toml:"frontend_url" validate:"required,url"`
	// PublicURL is where this API is reachable; in-memory object URLs are built from it.
	PublicURL string `yaml:"public_url" toml:"public_url" validate:"required,url"`

	Google   GoogleConfig   `yaml:"google" toml:"google"`
	Secrets  SecretsConfig  `yaml:"secrets" toml:"secrets"`
	Tables   TablesConfig   `yaml:"tables" toml:"tables"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Firebase FirebaseConfig `yaml:"firebase" toml:"firebase"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
	Queue    QueueConfig    `yaml:"queue" toml:"queue"`
	KMSKeyID string         `yaml:"kms_key_id" toml:"kms_key_id"`
}

type GoogleConfig struct {
	ClientID    string `yaml:"client_id" toml:"client_id"`
	RedirectURL string `yaml:"redirect_url" toml:"redirect_url"`
}

// SecretsConfig names SSM parameters (or, in dev mode, env vars derived from them).
type SecretsConfig struct {
	GoogleClientSecretParam string `yaml:"google_client_secret_param" toml:"google_client_secret_param" validate:"required"`
	JWTSecretParam          string `yaml:"jwt_secret_param" toml:"jwt_secret_param" validate:"required"`
	APIGatewaySecretParam   string `yaml:"api_gateway_secret_param" toml:"api_gateway_secret_param" validate:"required"`
	GiphyAPIKeyParam        string `yaml:"giphy_api_key_param" toml:"giphy_api_key_param" validate:"required"`
}

type TablesConfig struct {
	UserTokens string `yaml:"user_tokens" toml:"user_tokens" validate:"required"`
	Letters    string `yaml:"letters" toml:"letters" validate:"required"`
	Locks      string `yaml:"locks" toml:"locks" validate:"required"`
}

// StorageConfig selects the letter and object backends.
type StorageConfig struct {
	Letters   string `yaml:"letters" toml:"letters" validate:"oneof=memory dynamodb firestore sql"`
	Objects   string `yaml:"objects" toml:"objects" validate:"oneof=memory firebase drive"`
	SQLDriver string `yaml:"sql_driver" toml:"sql_driver" validate:"omitempty,oneof=sqlite postgres"`
	SQLDSN    string `yaml:"sql_dsn" toml:"sql_dsn"`
}

type FirebaseConfig struct {
	ProjectID       string `yaml:"project_id" toml:"project_id"`
	Bucket          string `yaml:"bucket" toml:"bucket"`
	CredentialsFile string `yaml:"credentials_file" toml:"credentials_file"`
	// VerifyIDTokens enables Firebase ID tokens as an alternative to session cookies.
	VerifyIDTokens bool `yaml:"verify_id_tokens" toml:"verify_id_tokens"`
}

type RedisConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

type QueueConfig struct {
	Endpoint     string `yaml:"endpoint" toml:"endpoint"`
	CleanupQueue string `yaml:"cleanup_queue" toml:"cleanup_queue"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		LogLevel:    "info",
		Addr:        ":8080",
		FrontendURL: "http://localhost:3000",
		PublicURL:   "http://localhost:8080",
		Secrets: SecretsConfig{
			GoogleClientSecretParam: "/dijitalmektup/google-client-secret",
			JWTSecretParam:          "/dijitalmektup/jwt-secret",
			APIGatewaySecretParam:   "/dijitalmektup/api-gateway-secret",
			GiphyAPIKeyParam:        "/dijitalmektup/giphy-api-key",
		},
		Tables: TablesConfig{
			UserTokens: "UserTokens",
			Letters:    "Letters",
			Locks:      "ResourceLocks",
		},
		Storage: StorageConfig{
			Letters: "dynamodb",
			Objects: "firebase",
		},
		KMSKeyID: "alias/dijitalmektup-token-key",
	}
}

// Load builds the configuration: defaults, then the LETTER_CONFIG file, then
// environment variables. The result is validated.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("LETTER_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.Getenv)

	if cfg.DevMode {
		cfg.applyDevDefaults()
	}
	if cfg.Google.RedirectURL == "" {
		if cfg.DevMode {
			cfg.Google.RedirectURL = "http://localhost:8080/auth/callback"
		} else {
			cfg.Google.RedirectURL = strings.TrimSuffix(cfg.FrontendURL, "/") + "/api/auth/callback"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, c); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return nil
}

// applyEnv overrides fields whose environment variable is set.
func (c *Config) applyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	boolean("DEV_MODE", &c.DevMode)
	str("LOG_LEVEL", &c.LogLevel)
	boolean("HUMAN_LOGS", &c.HumanLogs)
	str("ADDR", &c.Addr)
	str("FRONTEND_URL", &c.FrontendURL)
	str("PUBLIC_URL", &c.PublicURL)

	str("GOOGLE_CLIENT_ID", &c.Google.ClientID)
	str("GOOGLE_REDIRECT_URL", &c.Google.RedirectURL)

	str("GOOGLE_CLIENT_SECRET_PARAM", &c.Secrets.GoogleClientSecretParam)
	str("JWT_SECRET_PARAM", &c.Secrets.JWTSecretParam)
	str("API_GATEWAY_SECRET_PARAM", &c.Secrets.APIGatewaySecretParam)
	str("GIPHY_API_KEY_PARAM", &c.Secrets.GiphyAPIKeyParam)

	str("USER_TOKENS_TABLE", &c.Tables.UserTokens)
	str("LETTERS_TABLE", &c.Tables.Letters)
	str("LOCKS_TABLE", &c.Tables.Locks)

	str("LETTER_STORE", &c.Storage.Letters)
	str("OBJECT_STORE", &c.Storage.Objects)
	str("SQL_DRIVER", &c.Storage.SQLDriver)
	str("SQL_DSN", &c.Storage.SQLDSN)

	str("FIREBASE_PROJECT_ID", &c.Firebase.ProjectID)
	str("FIREBASE_BUCKET", &c.Firebase.Bucket)
	str("FIREBASE_CREDENTIALS_FILE", &c.Firebase.CredentialsFile)
	boolean("FIREBASE_VERIFY_ID_TOKENS", &c.Firebase.VerifyIDTokens)

	str("REDIS_ENDPOINT", &c.Redis.Addr)
	str("SQS_ENDPOINT", &c.Queue.Endpoint)
	str("CLEANUP_QUEUE", &c.Queue.CleanupQueue)

	str("KMS_KEY_ID", &c.KMSKeyID)
}

// applyDevDefaults switches cloud backends to local ones unless set explicitly.
func (c *Config) applyDevDefaults() {
	if c.Storage.Objects == "firebase" && c.Firebase.Bucket == "" {
		c.Storage.Objects = "memory"
	}
	if c.Storage.Letters == "firestore" && c.Firebase.ProjectID == "" {
		c.Storage.Letters = "dynamodb"
	}
	if c.LogLevel == "info" {
		c.LogLevel = "debug"
	}
}

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validatorOnce.Do(func() {
		validateInst = validator.New()
	})
	return validateInst
}

// Validate performs schema and cross-field validation.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("validation error: configuration is nil")
	}
	if err := Validator().Struct(c); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if c.Storage.Letters == "firestore" && c.Firebase.ProjectID == "" {
		return fmt.Errorf("validation error: firebase.project_id is required for the firestore letter store")
	}
	if c.Storage.Letters == "sql" && (c.Storage.SQLDriver == "" || c.Storage.SQLDSN == "") {
		return fmt.Errorf("validation error: storage.sql_driver and storage.sql_dsn are required for the sql letter store")
	}
	if c.Storage.Objects == "firebase" && c.Firebase.Bucket == "" {
		return fmt.Errorf("validation error: firebase.bucket is required for the firebase object store")
	}
	return nil
}
