// Package config loads the process configuration from the environment,
// an optional .env file and an optional config file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aretw0/blobrelay/internal/logging"
	"github.com/aretw0/blobrelay/pkg/retry"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend names.
const (
	StorageAzure  = "azblob"
	StorageS3     = "s3"
	StorageMemory = "memory"

	SecretsKeyVault = "keyvault"
	SecretsFile     = "file"
	SecretsEnv      = "env"

	StateMemory = "memory"
	StateFile   = "file"
	StateRedis  = "redis"
)

// Config is built once at startup and passed down explicitly.
type Config struct {
	Storage StorageConfig
	SFTP    SFTPConfig
	Secrets SecretsConfig
	State   StateConfig
	Retry   retry.Policy

	LogLevel  slog.Level
	LogFormat string
	HTTPAddr  string
}

// StorageConfig selects where objects are fetched from.
type StorageConfig struct {
	Backend string

	// Azure Blob Storage
	ConnectionString string
	Container        string

	// S3-compatible storage
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3Bucket    string
	S3UseSSL    bool
}

// SFTPConfig describes the delivery target.
type SFTPConfig struct {
	Host          string
	Port          int
	Username      string
	RemotePath    string
	KeySecretName string
	KeyPassphrase string
	KnownHosts    string
	DialTimeout   time.Duration
}

// SecretsConfig selects where the SSH private key is read from.
type SecretsConfig struct {
	Backend   string
	VaultName string
	Dir       string
	EnvPrefix string
}

// StateConfig selects where orchestration checkpoints live.
type StateConfig struct {
	Backend       string
	Dir           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
	EncryptionKey []byte
}

// envKeys maps config keys to the environment variables they are read from.
// Names are case-sensitive, AzureWebJobsStorage included.
var envKeys = []string{
	"AzureWebJobsStorage",
	"BLOB_CONTAINER_NAME",
	"STORAGE_BACKEND",
	"S3_ENDPOINT",
	"S3_ACCESS_KEY",
	"S3_SECRET_KEY",
	"S3_REGION",
	"S3_BUCKET",
	"S3_USE_SSL",
	"SFTP_HOST",
	"SFTP_PORT",
	"SFTP_USERNAME",
	"SFTP_REMOTE_PATH",
	"SFTP_KNOWN_HOSTS",
	"SFTP_DIAL_TIMEOUT",
	"SSH_KEY_SECRET_NAME",
	"SSH_KEY_PASSPHRASE",
	"SECRET_BACKEND",
	"KEYVAULT_NAME",
	"SECRET_DIR",
	"SECRET_ENV_PREFIX",
	"STATE_BACKEND",
	"STATE_DIR",
	"REDIS_ADDR",
	"REDIS_PASSWORD",
	"REDIS_DB",
	"STATE_TTL",
	"STATE_ENCRYPTION_KEY",
	"RETRY_FIRST_INTERVAL",
	"RETRY_MAX_ATTEMPTS",
	"RETRY_BACKOFF_COEFFICIENT",
	"RETRY_MAX_INTERVAL",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"HTTP_ADDR",
}

// Options controls where Load looks besides the process environment.
type Options struct {
	// EnvFile is loaded into the environment if it exists. Existing variables win.
	EnvFile string

	// ConfigFile is an optional YAML/JSON/TOML file using the same key names.
	ConfigFile string
}

// Load reads and validates the configuration.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	for _, key := range envKeys {
		if err := v.BindEnv(key, key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	policy := retry.DefaultPolicy()

	v.SetDefault("STORAGE_BACKEND", StorageAzure)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("SFTP_PORT", 22)
	v.SetDefault("SFTP_DIAL_TIMEOUT", "30s")
	v.SetDefault("SECRET_BACKEND", SecretsKeyVault)
	v.SetDefault("SECRET_DIR", "/run/secrets")
	v.SetDefault("STATE_BACKEND", StateFile)
	v.SetDefault("STATE_DIR", ".blobrelay/instances")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("STATE_TTL", "0s")
	v.SetDefault("RETRY_FIRST_INTERVAL", policy.FirstRetryInterval.String())
	v.SetDefault("RETRY_MAX_ATTEMPTS", policy.MaxAttempts)
	v.SetDefault("RETRY_BACKOFF_COEFFICIENT", policy.BackoffCoefficient)
	v.SetDefault("RETRY_MAX_INTERVAL", "0s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("HTTP_ADDR", ":8080")
}

func fromViper(v *viper.Viper) (*Config, error) {
	level, err := logging.ParseLevel(v.GetString("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}

	var key []byte
	if raw := v.GetString("STATE_ENCRYPTION_KEY"); raw != "" {
		key, err = base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("STATE_ENCRYPTION_KEY is not valid base64: %w", err)
		}
	}

	return &Config{
		Storage: StorageConfig{
			Backend:          strings.ToLower(v.GetString("STORAGE_BACKEND")),
			ConnectionString: v.GetString("AzureWebJobsStorage"),
			Container:        v.GetString("BLOB_CONTAINER_NAME"),
			S3Endpoint:       v.GetString("S3_ENDPOINT"),
			S3AccessKey:      v.GetString("S3_ACCESS_KEY"),
			S3SecretKey:      v.GetString("S3_SECRET_KEY"),
			S3Region:         v.GetString("S3_REGION"),
			S3Bucket:         v.GetString("S3_BUCKET"),
			S3UseSSL:         v.GetBool("S3_USE_SSL"),
		},
		SFTP: SFTPConfig{
			Host:          v.GetString("SFTP_HOST"),
			Port:          v.GetInt("SFTP_PORT"),
			Username:      v.GetString("SFTP_USERNAME"),
			RemotePath:    v.GetString("SFTP_REMOTE_PATH"),
			KeySecretName: v.GetString("SSH_KEY_SECRET_NAME"),
			KeyPassphrase: v.GetString("SSH_KEY_PASSPHRASE"),
			KnownHosts:    v.GetString("SFTP_KNOWN_HOSTS"),
			DialTimeout:   v.GetDuration("SFTP_DIAL_TIMEOUT"),
		},
		Secrets: SecretsConfig{
			Backend:   strings.ToLower(v.GetString("SECRET_BACKEND")),
			VaultName: v.GetString("KEYVAULT_NAME"),
			Dir:       v.GetString("SECRET_DIR"),
			EnvPrefix: v.GetString("SECRET_ENV_PREFIX"),
		},
		State: StateConfig{
			Backend:       strings.ToLower(v.GetString("STATE_BACKEND")),
			Dir:           v.GetString("STATE_DIR"),
			RedisAddr:     v.GetString("REDIS_ADDR"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			TTL:           v.GetDuration("STATE_TTL"),
			EncryptionKey: key,
		},
		Retry: retry.Policy{
			FirstRetryInterval: v.GetDuration("RETRY_FIRST_INTERVAL"),
			MaxAttempts:        v.GetInt("RETRY_MAX_ATTEMPTS"),
			BackoffCoefficient: v.GetFloat64("RETRY_BACKOFF_COEFFICIENT"),
			MaxRetryInterval:   v.GetDuration("RETRY_MAX_INTERVAL"),
		},
		LogLevel:  level,
		LogFormat: strings.ToLower(v.GetString("LOG_FORMAT")),
		HTTPAddr:  v.GetString("HTTP_ADDR"),
	}, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	missing := func(name, value string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	switch c.Storage.Backend {
	case StorageAzure:
		missing("AzureWebJobsStorage", c.Storage.ConnectionString)
		missing("BLOB_CONTAINER_NAME", c.Storage.Container)
	case StorageS3:
		missing("S3_ENDPOINT", c.Storage.S3Endpoint)
		missing("S3_BUCKET", c.Storage.S3Bucket)
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}

	missing("SFTP_HOST", c.SFTP.Host)
	missing("SFTP_USERNAME", c.SFTP.Username)
	missing("SFTP_REMOTE_PATH", c.SFTP.RemotePath)
	missing("SSH_KEY_SECRET_NAME", c.SFTP.KeySecretName)
	if c.SFTP.Port <= 0 || c.SFTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("SFTP_PORT %d out of range", c.SFTP.Port))
	}

	switch c.Secrets.Backend {
	case SecretsKeyVault:
		missing("KEYVAULT_NAME", c.Secrets.VaultName)
	case SecretsFile:
		missing("SECRET_DIR", c.Secrets.Dir)
	case SecretsEnv:
	default:
		errs = append(errs, fmt.Errorf("unknown SECRET_BACKEND %q", c.Secrets.Backend))
	}

	switch c.State.Backend {
	case StateMemory:
	case StateFile:
		missing("STATE_DIR", c.State.Dir)
	case StateRedis:
		missing("REDIS_ADDR", c.State.RedisAddr)
	default:
		errs = append(errs, fmt.Errorf("unknown STATE_BACKEND %q", c.State.Backend))
	}
	if n := len(c.State.EncryptionKey); n != 0 && n != 32 {
		errs = append(errs, fmt.Errorf("STATE_ENCRYPTION_KEY must decode to 32 bytes, got %d", n))
	}

	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c *Config) Logger() *slog.Logger {
	if c.LogFormat == "json" {
		return logging.NewJSON(os.Stderr, c.LogLevel)
	}
	return logging.New(c.LogLevel)
}
