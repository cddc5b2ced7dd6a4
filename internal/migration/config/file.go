package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

type endpointSection struct {
	URL   string `yaml:"url"`
	Scope string `yaml:"scope"`
}

type optionsSection struct {
	OrganizationID      *string `yaml:"organization_id"`
	MigrateDatasets     *bool   `yaml:"migrate_datasets"`
	MigrateScenarioRuns *bool   `yaml:"migrate_scenario_runs"`
	Parallelism         *int    `yaml:"parallelism"`
	IDStrategy          *string `yaml:"id_strategy"`
	Filter              *string `yaml:"filter"`
	FailOnSkip          *bool   `yaml:"fail_on_skip"`
	// FetchFromAzureAD is accepted for compatibility with existing files; user
	// directories are not migrated.
	FetchFromAzureAD bool `yaml:"fetch_from_azure_ad"`
}

// yamlFile mirrors the YAML layout: "cosmos" is the source API, "redis" the
// destination API.
type yamlFile struct {
	Cosmos  endpointSection `yaml:"cosmos"`
	Redis   endpointSection `yaml:"redis"`
	Options optionsSection  `yaml:"options"`
	MongoDB struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongodb"`
}

// ApplyFile overlays the settings found in path onto cfg. The format follows
// the extension: .yaml/.yml or .ini/.cfg.
func ApplyFile(cfg *Config, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return applyYAML(cfg, path)
	case ".ini", ".cfg", ".conf":
		return applyINI(cfg, path)
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}
}

func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	applyEndpoint(&cfg.Source, f.Cosmos)
	applyEndpoint(&cfg.Destination, f.Redis)
	applyOptions(cfg, f.Options)
	setString(&cfg.Mongo.URI, f.MongoDB.URI)
	setString(&cfg.Mongo.Database, f.MongoDB.Database)
	return nil
}

// applyINI reads the INI layout: [COSMOSDB] url, key, database and optional
// username address the source document database; [REDIS] url and scope
// address the destination API; [OPTIONS] carries run options.
func applyINI(cfg *Config, path string) error {
	f, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cosmos := f.Section("COSMOSDB")
	if url := cosmos.Key("url").String(); url != "" {
		cfg.Mongo.URI = url
		cfg.SourceBackend = BackendMongoDB
	}
	setString(&cfg.Mongo.Password, cosmos.Key("key").String())
	setString(&cfg.Mongo.Username, cosmos.Key("username").String())
	setString(&cfg.Mongo.Database, cosmos.Key("database").String())

	redis := f.Section("REDIS")
	applyEndpoint(&cfg.Destination, endpointSection{
		URL:   redis.Key("url").String(),
		Scope: redis.Key("scope").String(),
	})

	opts := f.Section("OPTIONS")
	var o optionsSection
	if opts.HasKey("organization_id") {
		v := opts.Key("organization_id").String()
		o.OrganizationID = &v
	}
	if opts.HasKey("migrate_datasets") {
		v := opts.Key("migrate_datasets").MustBool(cfg.MigrateDatasets)
		o.MigrateDatasets = &v
	}
	if opts.HasKey("migrate_scenario_runs") {
		v := opts.Key("migrate_scenario_runs").MustBool(cfg.MigrateScenarioRuns)
		o.MigrateScenarioRuns = &v
	}
	if opts.HasKey("parallelism") {
		v, err := opts.Key("parallelism").Int()
		if err != nil {
			return fmt.Errorf("invalid parallelism in %s: %w", path, err)
		}
		o.Parallelism = &v
	}
	if opts.HasKey("id_strategy") {
		v := opts.Key("id_strategy").String()
		o.IDStrategy = &v
	}
	if opts.HasKey("filter") {
		v := opts.Key("filter").String()
		o.Filter = &v
	}
	if opts.HasKey("fail_on_skip") {
		v := opts.Key("fail_on_skip").MustBool(cfg.FailOnSkip)
		o.FailOnSkip = &v
	}
	applyOptions(cfg, o)
	return nil
}

func applyEndpoint(api *APIConfig, s endpointSection) {
	setString(&api.URL, s.URL)
	setString(&api.Scope, s.Scope)
}

func applyOptions(cfg *Config, o optionsSection) {
	if o.OrganizationID != nil {
		cfg.OrganizationID = *o.OrganizationID
	}
	if o.MigrateDatasets != nil {
		cfg.MigrateDatasets = *o.MigrateDatasets
	}
	if o.MigrateScenarioRuns != nil {
		cfg.MigrateScenarioRuns = *o.MigrateScenarioRuns
	}
	if o.Parallelism != nil {
		cfg.Parallelism = *o.Parallelism
	}
	if o.IDStrategy != nil {
		cfg.IDStrategy = *o.IDStrategy
	}
	if o.Filter != nil {
		cfg.Filter = *o.Filter
	}
	if o.FailOnSkip != nil {
		cfg.FailOnSkip = *o.FailOnSkip
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
