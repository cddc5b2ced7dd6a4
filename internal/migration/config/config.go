package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Mode selects how a run moves data.
type Mode string

const (
	// ModeDirect walks the source hierarchy and writes straight to the destination.
	ModeDirect Mode = "direct"
	// ModeExport scans the source documents into the dump store.
	ModeExport Mode = "export"
	// ModeImport replays the dump store into the destination.
	ModeImport Mode = "import"
)

// Backend names accepted by SOURCE_BACKEND and DESTINATION_BACKEND.
const (
	BackendAPI     = "api"
	BackendMongoDB = "mongodb"
	BackendRedis   = "redis"
	BackendMemory  = "memory"
)

// Auth modes accepted by <SIDE>_AUTH_MODE.
const (
	AuthNone              = "none"
	AuthClientCredentials = "client_credentials"
	AuthStaticToken       = "token"
	AuthJWT               = "jwt"
)

// MongoConfig addresses the document database exposed through the MongoDB wire protocol.
type MongoConfig struct {
	URI      string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	Database string `env:"MONGODB_DATABASE" envDefault:"cosmo"`
	Username string `env:"MONGODB_USERNAME"`
	// Password is the account key when Username is set.
	Password       string        `env:"MONGODB_PASSWORD"`
	ConnectTimeout time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
}

// RedisConfig holds the Redis connection and key layout settings.
type RedisConfig struct {
	Host            string `env:"REDIS_HOST" envDefault:"localhost"`
	Port            string `env:"REDIS_PORT" envDefault:"6379"`
	Password        string `env:"REDIS_PASSWORD"`
	Database        int    `env:"REDIS_DB" envDefault:"0"`
	MaxRetries      int    `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	PoolSize        int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns    int    `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	EnableTLS       bool   `env:"REDIS_TLS" envDefault:"false"`
	ConnMaxIdleTime string `env:"REDIS_CONN_MAX_IDLE_TIME" envDefault:"30m"`
	ConnMaxLifetime string `env:"REDIS_CONN_MAX_LIFETIME" envDefault:"1h"`
	KeyPrefix       string `env:"REDIS_KEY_PREFIX" envDefault:"cosmo"`
	StreamMaxLength int64  `env:"REDIS_STREAM_MAX_LENGTH" envDefault:"10000"`
}

// GetAddr returns host:port.
func (c *RedisConfig) GetAddr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// APIConfig addresses one platform REST API and the way to authenticate against it.
// It is parsed twice, under the SOURCE_ and DESTINATION_ prefixes.
type APIConfig struct {
	URL     string        `env:"API_URL"`
	Timeout time.Duration `env:"API_TIMEOUT" envDefault:"30s"`

	AuthMode     string `env:"AUTH_MODE" envDefault:"none"`
	TokenURL     string `env:"TOKEN_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	// Scope is the OAuth2 scope requested for the access token.
	Scope string `env:"SCOPE"`
	Token string `env:"TOKEN"`

	JWTSigningKey string        `env:"JWT_SIGNING_KEY"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"cosmo-migrator"`
	JWTSubject    string        `env:"JWT_SUBJECT" envDefault:"cosmo-migrator"`
	JWTAudience   string        `env:"JWT_AUDIENCE"`
	JWTTTL        time.Duration `env:"JWT_TTL" envDefault:"15m"`
}

// DumpConfig selects where export writes and import reads documents.
type DumpConfig struct {
	Backend string `env:"DUMP_BACKEND" envDefault:"fs"`
	Dir     string `env:"DUMP_DIR" envDefault:"dump"`

	S3Bucket          string `env:"DUMP_S3_BUCKET"`
	S3Prefix          string `env:"DUMP_S3_PREFIX"`
	S3Region          string `env:"DUMP_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint        string `env:"DUMP_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"DUMP_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"DUMP_S3_SECRET_ACCESS_KEY"`
	S3PathStyle       bool   `env:"DUMP_S3_PATH_STYLE" envDefault:"false"`
}

// AuditConfig lists the audit sinks to open. Empty values disable a sink.
type AuditConfig struct {
	CSVPath     string `env:"AUDIT_CSV" envDefault:"cosmo_migration_report.csv"`
	XLSXPath    string `env:"AUDIT_XLSX"`
	RedisStream string `env:"AUDIT_REDIS_STREAM"`
}

// StatusConfig controls the optional status server.
type StatusConfig struct {
	// Addr is the listen address; empty disables the server.
	Addr string `env:"STATUS_ADDR"`
	// Linger keeps the server up after the run so the final status can be read.
	Linger time.Duration `env:"STATUS_LINGER" envDefault:"0s"`
}

// Config holds all configuration for a migration run.
type Config struct {
	Mode           Mode   `env:"MODE" envDefault:"direct"`
	RunID          string `env:"RUN_ID"`
	OrganizationID string `env:"ORGANIZATION_ID"`

	MigrateDatasets     bool   `env:"MIGRATE_DATASETS" envDefault:"true"`
	MigrateScenarioRuns bool   `env:"MIGRATE_SCENARIO_RUNS" envDefault:"true"`
	Parallelism         int    `env:"PARALLELISM" envDefault:"1"`
	IDStrategy          string `env:"ID_STRATEGY" envDefault:"mint"`
	Filter              string `env:"MIGRATION_FILTER"`
	FailOnSkip          bool   `env:"FAIL_ON_SKIP" envDefault:"false"`

	SourceBackend      string `env:"SOURCE_BACKEND" envDefault:"api"`
	DestinationBackend string `env:"DESTINATION_BACKEND" envDefault:"api"`

	// ConfigFile optionally points at a YAML or INI file whose values take
	// precedence over the environment.
	ConfigFile string `env:"CONFIG_FILE"`

	Mongo       MongoConfig
	Redis       RedisConfig
	Source      APIConfig `envPrefix:"SOURCE_"`
	Destination APIConfig `envPrefix:"DESTINATION_"`
	Dump        DumpConfig
	Audit       AuditConfig
	Status      StatusConfig
}

// LoadConfig loads configuration from environment variables, overlays the
// optional config file and validates the result.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load migration configuration from environment: " + err.Error())
	}
	if cfg.ConfigFile != "" {
		if err := ApplyFile(cfg, cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the selected mode and backends depend on.
func (c *Config) Validate() error {
	c.Mode = Mode(strings.ToLower(string(c.Mode)))
	switch c.Mode {
	case ModeDirect, ModeExport, ModeImport:
	default:
		return fmt.Errorf("MODE must be one of direct, export, import; got %q", c.Mode)
	}
	switch c.IDStrategy {
	case "mint", "preserve":
	default:
		return fmt.Errorf("ID_STRATEGY must be mint or preserve; got %q", c.IDStrategy)
	}
	if c.Parallelism < 1 {
		c.Parallelism = 1
	}

	if c.Mode != ModeImport {
		switch c.SourceBackend {
		case BackendAPI:
			if err := c.Source.validate("SOURCE_"); err != nil {
				return err
			}
		case BackendMongoDB:
			if c.Mongo.URI == "" {
				return errors.New("MONGODB_URI environment variable is not set")
			}
		case BackendRedis, BackendMemory:
		default:
			return fmt.Errorf("unsupported SOURCE_BACKEND %q", c.SourceBackend)
		}
		if c.Mode == ModeExport && c.SourceBackend != BackendMongoDB && c.SourceBackend != BackendMemory {
			return fmt.Errorf("export needs a document source (mongodb or memory), got %q", c.SourceBackend)
		}
	}
	if c.Mode != ModeExport {
		switch c.DestinationBackend {
		case BackendAPI:
			if err := c.Destination.validate("DESTINATION_"); err != nil {
				return err
			}
		case BackendRedis, BackendMemory:
		default:
			return fmt.Errorf("unsupported DESTINATION_BACKEND %q", c.DestinationBackend)
		}
	}
	if c.Mode != ModeDirect {
		switch c.Dump.Backend {
		case "fs":
			if c.Dump.Dir == "" {
				return errors.New("DUMP_DIR must be set for the fs dump backend")
			}
		case "s3":
			if c.Dump.S3Bucket == "" {
				return errors.New("DUMP_S3_BUCKET must be set for the s3 dump backend")
			}
		default:
			return fmt.Errorf("unsupported DUMP_BACKEND %q", c.Dump.Backend)
		}
	}
	return nil
}

func (a *APIConfig) validate(prefix string) error {
	if a.URL == "" {
		return errors.New(prefix + "API_URL environment variable is not set")
	}
	switch a.AuthMode {
	case AuthNone:
	case AuthClientCredentials:
		if a.TokenURL == "" || a.ClientID == "" {
			return errors.New(prefix + "TOKEN_URL and " + prefix + "CLIENT_ID are required for client_credentials auth")
		}
	case AuthStaticToken:
		if a.Token == "" {
			return errors.New(prefix + "TOKEN is required for token auth")
		}
	case AuthJWT:
		if a.JWTSigningKey == "" {
			return errors.New(prefix + "JWT_SIGNING_KEY is required for jwt auth")
		}
	default:
		return fmt.Errorf("unsupported %sAUTH_MODE %q", prefix, a.AuthMode)
	}
	return nil
}
