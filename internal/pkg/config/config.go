package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Security SecurityConfig
	N8N      N8NConfig
	Sync     SyncConfig
	Backup   BackupConfig
	S3       S3Config
}

type AppConfig struct {
	Name                   string
	Environment            string
	Debug                  bool
	FrontendURL            string
	ExecutionRetentionDays int
	SyncLogRetentionDays   int
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type DatabaseConfig struct {
	Driver string

	// SQLite
	Path        string
	BusyTimeout time.Duration

	// Postgres
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogQueries      bool
}

// DSN returns the driver specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == DriverPostgres {
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
		)
	}

	busy := c.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return fmt.Sprintf(
		"%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		c.Path, busy.Milliseconds(),
	)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

type SecurityConfig struct {
	EncryptionKey string
}

// N8NConfig describes the default provider of a single-tenant deployment
// and the transport limits shared by every remote client.
type N8NConfig struct {
	ProviderName   string
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	TestTimeout    time.Duration
	RateLimit      float64
	RateBurst      int
}

type SyncConfig struct {
	AutoStart              bool
	IntervalMinutes        int
	ExecutionBatchSize     int
	BackupBatchSize        int
	MaxExecutionPages      int
	IncludeExecutionData   bool
	MaxConcurrentProviders int
	LeaderKey              string
	LeaderTTL              time.Duration
}

func (c *SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

type BackupConfig struct {
	Store  string // none or s3
	Prefix string
}

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads the given file instead of searching the default paths.
func LoadFrom(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config

	// App
	cfg.App.Name = viper.GetString("app.name")
	cfg.App.Environment = viper.GetString("app.environment")
	cfg.App.Debug = viper.GetBool("app.debug")
	cfg.App.FrontendURL = viper.GetString("app.frontend_url")
	cfg.App.ExecutionRetentionDays = viper.GetInt("app.execution_retention_days")
	cfg.App.SyncLogRetentionDays = viper.GetInt("app.sync_log_retention_days")

	// Server
	cfg.Server.Host = viper.GetString("server.host")
	cfg.Server.Port = viper.GetInt("server.port")
	cfg.Server.ReadTimeout = viper.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = viper.GetDuration("server.write_timeout")
	cfg.Server.IdleTimeout = viper.GetDuration("server.idle_timeout")

	// Database
	cfg.Database.Driver = viper.GetString("database.driver")
	cfg.Database.Path = viper.GetString("database.path")
	cfg.Database.BusyTimeout = viper.GetDuration("database.busy_timeout")
	cfg.Database.Host = viper.GetString("database.host")
	cfg.Database.Port = viper.GetInt("database.port")
	cfg.Database.User = viper.GetString("database.user")
	cfg.Database.Password = viper.GetString("database.password")
	cfg.Database.Name = viper.GetString("database.name")
	cfg.Database.SSLMode = viper.GetString("database.sslmode")
	cfg.Database.MaxOpenConns = viper.GetInt("database.max_open_conns")
	cfg.Database.MaxIdleConns = viper.GetInt("database.max_idle_conns")
	cfg.Database.ConnMaxLifetime = viper.GetDuration("database.conn_max_lifetime")
	cfg.Database.LogQueries = viper.GetBool("database.log_queries")

	// Redis
	cfg.Redis.Enabled = viper.GetBool("redis.enabled")
	cfg.Redis.Host = viper.GetString("redis.host")
	cfg.Redis.Port = viper.GetInt("redis.port")
	cfg.Redis.Password = viper.GetString("redis.password")
	cfg.Redis.DB = viper.GetInt("redis.db")

	// JWT
	cfg.JWT.Secret = viper.GetString("jwt.secret")
	cfg.JWT.Expiry = viper.GetDuration("jwt.expiry")
	cfg.JWT.Issuer = viper.GetString("jwt.issuer")

	// Security
	cfg.Security.EncryptionKey = viper.GetString("security.encryption_key")

	// n8n
	cfg.N8N.ProviderName = viper.GetString("n8n.provider_name")
	cfg.N8N.BaseURL = viper.GetString("n8n.base_url")
	cfg.N8N.APIKey = viper.GetString("n8n.api_key")
	cfg.N8N.RequestTimeout = viper.GetDuration("n8n.request_timeout")
	cfg.N8N.TestTimeout = viper.GetDuration("n8n.test_timeout")
	cfg.N8N.RateLimit = viper.GetFloat64("n8n.rate_limit")
	cfg.N8N.RateBurst = viper.GetInt("n8n.rate_burst")

	// Sync
	cfg.Sync.AutoStart = viper.GetBool("sync.auto_start")
	cfg.Sync.IntervalMinutes = viper.GetInt("sync.interval_minutes")
	cfg.Sync.ExecutionBatchSize = viper.GetInt("sync.execution_batch_size")
	cfg.Sync.BackupBatchSize = viper.GetInt("sync.backup_batch_size")
	cfg.Sync.MaxExecutionPages = viper.GetInt("sync.max_execution_pages")
	cfg.Sync.IncludeExecutionData = viper.GetBool("sync.include_execution_data")
	cfg.Sync.MaxConcurrentProviders = viper.GetInt("sync.max_concurrent_providers")
	cfg.Sync.LeaderKey = viper.GetString("sync.leader_key")
	cfg.Sync.LeaderTTL = viper.GetDuration("sync.leader_ttl")

	// Backup
	cfg.Backup.Store = viper.GetString("backup.store")
	cfg.Backup.Prefix = viper.GetString("backup.prefix")

	// S3
	cfg.S3.Endpoint = viper.GetString("s3.endpoint")
	cfg.S3.Region = viper.GetString("s3.region")
	cfg.S3.Bucket = viper.GetString("s3.bucket")
	cfg.S3.AccessKeyID = viper.GetString("s3.access_key_id")
	cfg.S3.SecretAccessKey = viper.GetString("s3.secret_access_key")
	cfg.S3.UsePathStyle = viper.GetBool("s3.use_path_style")

	return &cfg, nil
}

func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "flowmirror")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", true)
	viper.SetDefault("app.frontend_url", "http://localhost:3000")
	viper.SetDefault("app.execution_retention_days", 90)
	viper.SetDefault("app.sync_log_retention_days", 30)

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "120s")
	viper.SetDefault("server.idle_timeout", "60s")

	// Database defaults
	viper.SetDefault("database.driver", DriverSQLite)
	viper.SetDefault("database.path", "./data/flowmirror.db")
	viper.SetDefault("database.busy_timeout", "5s")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.name", "flowmirror")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.log_queries", false)

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// JWT defaults
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiry", "24h")
	viper.SetDefault("jwt.issuer", "flowmirror")

	viper.SetDefault("security.encryption_key", "change-me-in-production")

	// n8n defaults
	viper.SetDefault("n8n.provider_name", "n8n")
	viper.SetDefault("n8n.request_timeout", "30s")
	viper.SetDefault("n8n.test_timeout", "10s")
	viper.SetDefault("n8n.rate_limit", 10)
	viper.SetDefault("n8n.rate_burst", 5)

	// Sync defaults
	viper.SetDefault("sync.auto_start", true)
	viper.SetDefault("sync.interval_minutes", 15)
	viper.SetDefault("sync.execution_batch_size", 100)
	viper.SetDefault("sync.backup_batch_size", 50)
	viper.SetDefault("sync.max_execution_pages", 10)
	viper.SetDefault("sync.include_execution_data", true)
	viper.SetDefault("sync.max_concurrent_providers", 4)
	viper.SetDefault("sync.leader_key", "flowmirror:scheduler:leader")
	viper.SetDefault("sync.leader_ttl", "30s")

	// Backup defaults
	viper.SetDefault("backup.store", "none")
	viper.SetDefault("backup.prefix", "backups")

	// S3 defaults
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.use_path_style", false)
}
