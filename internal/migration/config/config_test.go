package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAPIEnv(t *testing.T) {
	t.Setenv("SOURCE_API_URL", "https://source.example.com")
	t.Setenv("DESTINATION_API_URL", "https://dest.example.com")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	setAPIEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ModeDirect, cfg.Mode)
	assert.True(t, cfg.MigrateDatasets)
	assert.True(t, cfg.MigrateScenarioRuns)
	assert.Equal(t, 1, cfg.Parallelism)
	assert.Equal(t, "mint", cfg.IDStrategy)
	assert.Equal(t, "https://source.example.com", cfg.Source.URL)
	assert.Equal(t, "https://dest.example.com", cfg.Destination.URL)
	assert.Equal(t, 30*time.Second, cfg.Destination.Timeout)
	assert.Equal(t, AuthNone, cfg.Source.AuthMode)
	assert.Equal(t, "localhost:6379", cfg.Redis.GetAddr())
	assert.Equal(t, "cosmo_migration_report.csv", cfg.Audit.CSVPath)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	setAPIEnv(t)
	t.Setenv("MODE", "Import")
	t.Setenv("MIGRATE_SCENARIO_RUNS", "false")
	t.Setenv("PARALLELISM", "4")
	t.Setenv("ID_STRATEGY", "preserve")
	t.Setenv("DESTINATION_BACKEND", "redis")
	t.Setenv("DUMP_DIR", "/tmp/dump")
	t.Setenv("SOURCE_AUTH_MODE", "client_credentials")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ModeImport, cfg.Mode)
	assert.False(t, cfg.MigrateScenarioRuns)
	assert.Equal(t, 4, cfg.Parallelism)
	assert.Equal(t, "preserve", cfg.IDStrategy)
	assert.Equal(t, "/tmp/dump", cfg.Dump.Dir)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Mode:               ModeDirect,
			IDStrategy:         "mint",
			SourceBackend:      BackendMemory,
			DestinationBackend: BackendMemory,
			Dump:               DumpConfig{Backend: "fs", Dir: "dump"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad mode", func(c *Config) { c.Mode = "sideways" }, "MODE"},
		{"bad strategy", func(c *Config) { c.IDStrategy = "random" }, "ID_STRATEGY"},
		{"api without url", func(c *Config) { c.DestinationBackend = BackendAPI }, "DESTINATION_API_URL"},
		{"client credentials without client", func(c *Config) {
			c.SourceBackend = BackendAPI
			c.Source = APIConfig{URL: "http://x", AuthMode: AuthClientCredentials}
		}, "SOURCE_CLIENT_ID"},
		{"jwt without key", func(c *Config) {
			c.SourceBackend = BackendAPI
			c.Source = APIConfig{URL: "http://x", AuthMode: AuthJWT}
		}, "JWT_SIGNING_KEY"},
		{"unknown auth", func(c *Config) {
			c.SourceBackend = BackendAPI
			c.Source = APIConfig{URL: "http://x", AuthMode: "kerberos"}
		}, "AUTH_MODE"},
		{"export from api", func(c *Config) {
			c.Mode = ModeExport
			c.SourceBackend = BackendAPI
			c.Source = APIConfig{URL: "http://x", AuthMode: AuthNone}
		}, "document source"},
		{"s3 without bucket", func(c *Config) {
			c.Mode = ModeImport
			c.Dump.Backend = "s3"
		}, "DUMP_S3_BUCKET"},
		{"import ignores source", func(c *Config) {
			c.Mode = ModeImport
			c.SourceBackend = "bogus"
		}, ""},
		{"export ignores destination", func(c *Config) {
			c.Mode = ModeExport
			c.DestinationBackend = "bogus"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ClampsParallelism(t *testing.T) {
	cfg := &Config{Mode: ModeDirect, IDStrategy: "mint", SourceBackend: BackendMemory, DestinationBackend: BackendMemory}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Parallelism)
}

func TestApplyFile_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
cosmos:
  url: https://cosmos-api.example.com
  scope: http://dev.api.cosmotech.com/.default
redis:
  url: https://redis-api.example.com
  scope: http://dev.api.cosmotech.com/.default
options:
  fetch_from_azure_ad: false
  organization_id: o-42
  migrate_datasets: false
  parallelism: 3
`)
	cfg := &Config{MigrateDatasets: true, MigrateScenarioRuns: true, Parallelism: 1}
	require.NoError(t, ApplyFile(cfg, path))

	assert.Equal(t, "https://cosmos-api.example.com", cfg.Source.URL)
	assert.Equal(t, "http://dev.api.cosmotech.com/.default", cfg.Source.Scope)
	assert.Equal(t, "https://redis-api.example.com", cfg.Destination.URL)
	assert.Equal(t, "o-42", cfg.OrganizationID)
	assert.False(t, cfg.MigrateDatasets)
	assert.True(t, cfg.MigrateScenarioRuns, "absent options keep their value")
	assert.Equal(t, 3, cfg.Parallelism)
}

func TestApplyFile_INI(t *testing.T) {
	path := writeFile(t, "migrate.ini", `
[COSMOSDB]
url = mongodb://cosmos.example.com:10255/?ssl=true
key = secret-key
database = phoenix

[REDIS]
url = https://redis-api.example.com
scope = api://cosmo/.default

[OPTIONS]
id_strategy = preserve
fail_on_skip = true
`)
	cfg := &Config{SourceBackend: BackendAPI, IDStrategy: "mint"}
	require.NoError(t, ApplyFile(cfg, path))

	assert.Equal(t, BackendMongoDB, cfg.SourceBackend)
	assert.Equal(t, "mongodb://cosmos.example.com:10255/?ssl=true", cfg.Mongo.URI)
	assert.Equal(t, "secret-key", cfg.Mongo.Password)
	assert.Equal(t, "phoenix", cfg.Mongo.Database)
	assert.Equal(t, "https://redis-api.example.com", cfg.Destination.URL)
	assert.Equal(t, "api://cosmo/.default", cfg.Destination.Scope)
	assert.Equal(t, "preserve", cfg.IDStrategy)
	assert.True(t, cfg.FailOnSkip)
}

func TestLoadConfig_FileOverridesEnv(t *testing.T) {
	setAPIEnv(t)
	t.Setenv("ORGANIZATION_ID", "o-env")
	t.Setenv("CONFIG_FILE", writeFile(t, "config.yml", "options:\n  organization_id: o-file\n"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "o-file", cfg.OrganizationID)
}

func TestApplyFile_Errors(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, ApplyFile(cfg, "config.toml"))
	assert.Error(t, ApplyFile(cfg, filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, ApplyFile(cfg, writeFile(t, "bad.yaml", "cosmos: [")))
}

func TestNewRedisClient(t *testing.T) {
	t.Run("builds options from the config", func(t *testing.T) {
		cfg := DefaultRedisConfig()
		cfg.EnableTLS = true
		cfg.KeyPrefix = "acme:"

		client, err := NewRedisClient(cfg)
		require.NoError(t, err)
		defer client.Close()

		opts := client.Options()
		assert.Equal(t, "localhost:6379", opts.Addr)
		assert.Equal(t, "acme-migrator", opts.ClientName)
		assert.Equal(t, 30*time.Minute, opts.ConnMaxIdleTime)
		assert.Equal(t, time.Hour, opts.ConnMaxLifetime)
		require.NotNil(t, opts.TLSConfig)
		assert.Equal(t, "localhost", opts.TLSConfig.ServerName)
	})

	t.Run("empty durations use defaults", func(t *testing.T) {
		cfg := DefaultRedisConfig()
		cfg.ConnMaxIdleTime = ""
		cfg.ConnMaxLifetime = ""
		opts, err := cfg.Options()
		require.NoError(t, err)
		assert.Equal(t, 30*time.Minute, opts.ConnMaxIdleTime)
		assert.Equal(t, time.Hour, opts.ConnMaxLifetime)
	})

	t.Run("invalid durations are rejected", func(t *testing.T) {
		cfg := DefaultRedisConfig()
		cfg.ConnMaxIdleTime = "not-a-duration"
		_, err := NewRedisClient(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REDIS_CONN_MAX_IDLE_TIME")
	})
}

func TestRedisConfig_Prefix(t *testing.T) {
	cases := map[string]string{
		"cosmo": "cosmo",
		"acme:": "acme",
		"  ":    "cosmo",
		"":      "cosmo",
		"a:b::": "a:b",
	}
	for in, want := range cases {
		cfg := RedisConfig{KeyPrefix: in}
		assert.Equal(t, want, cfg.Prefix(), "prefix %q", in)
	}
}
