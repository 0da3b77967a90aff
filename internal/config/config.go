package config

import (
	"strings"
	"time"

	"github.com/imamik/stagehand/internal/migration"
)

// Config holds the launch configuration.
type Config struct {
	Namespace string `yaml:"namespace"`
	Release   string `yaml:"release"`

	// ToVersion is the application version being deployed.
	ToVersion string `yaml:"to_version"`

	Migration MigrationConfig `yaml:"migration"`
	Database  DatabaseConfig  `yaml:"database"`
	Execution ExecutionConfig `yaml:"execution"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Stages    StagesConfig    `yaml:"stages"`
	Await     AwaitConfig     `yaml:"await"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// MigrationConfig is the user-facing form of migration.Request.
type MigrationConfig struct {
	Enabled    bool `yaml:"enabled"`
	AutoDetect bool `yaml:"auto_detect"`

	// FromVersion is the version currently installed. Without it no run is started.
	FromVersion string `yaml:"from_version"`

	// BackupEnabled copies the tables rewritten by the data migration before rewriting them.
	BackupEnabled bool `yaml:"backup_enabled"`

	SkipPluginMigration bool               `yaml:"skip_plugin_migration"`
	SkipMode            migration.SkipMode `yaml:"skip_mode"`

	MarketplaceURL string `yaml:"marketplace_url"`

	// PluginNamespace prefixes bare provider names to form plugin identifiers.
	PluginNamespace string `yaml:"plugin_namespace"`

	Workers WorkersConfig `yaml:"workers"`
}

type WorkersConfig struct {
	Extract int `yaml:"extract"`
	Install int `yaml:"install"`
}

// DatabaseConfig points at the application database. Credentials are never
// part of the file; they are read from CredentialsSecret inside the stage pods.
type DatabaseConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Name              string `yaml:"name"`
	SSLMode           string `yaml:"ssl_mode"`
	CredentialsSecret string `yaml:"credentials_secret"`
	UsernameKey       string `yaml:"username_key"`
	PasswordKey       string `yaml:"password_key"`
}

// ExecutionConfig describes the identity and image the stage jobs run with.
type ExecutionConfig struct {
	ServiceAccount string `yaml:"service_account"`
	ImageRegistry  string `yaml:"image_registry"`
	Image          string `yaml:"image"`
	Tag            string `yaml:"tag"`
	PullPolicy     string `yaml:"pull_policy"`

	// CreateRBAC grants the service account write access to the run's status record.
	CreateRBAC bool `yaml:"create_rbac"`
}

// ArtifactBackend selects where the shared artifact store lives.
type ArtifactBackend string

const (
	BackendVolume ArtifactBackend = "volume"
	BackendS3     ArtifactBackend = "s3"
)

type ArtifactsConfig struct {
	Backend      ArtifactBackend `yaml:"backend"`
	Size         string          `yaml:"size"`
	StorageClass string          `yaml:"storage_class"`
	AccessMode   string          `yaml:"access_mode"`
	S3           S3Config        `yaml:"s3"`
}

// S3Config configures the object storage backend. Keys are read from
// CredentialsSecret inside the stage pods.
type S3Config struct {
	Endpoint          string `yaml:"endpoint"`
	Region            string `yaml:"region"`
	Bucket            string `yaml:"bucket"`
	PathStyle         bool   `yaml:"path_style"`
	CredentialsSecret string `yaml:"credentials_secret"`
	AccessKeyKey      string `yaml:"access_key_key"`
	SecretKeyKey      string `yaml:"secret_key_key"`
}

// StageConfig holds the batch limits of one stage.
type StageConfig struct {
	// RetryLimit is the number of automatic retries after the first attempt.
	RetryLimit *int `yaml:"retry_limit"`

	// Deadline caps the wall-clock time of one body attempt.
	Deadline time.Duration `yaml:"deadline"`

	// Retention is how long the finished job is kept before cleanup.
	Retention time.Duration `yaml:"retention"`
}

type StagesConfig struct {
	Extract       StageConfig `yaml:"extract"`
	Install       StageConfig `yaml:"install"`
	SchemaUpgrade StageConfig `yaml:"schema_upgrade"`
	DataMigrate   StageConfig `yaml:"data_migrate"`
}

// For returns the configuration of the named stage.
func (s StagesConfig) For(name migration.StageName) StageConfig {
	switch name {
	case migration.StageExtract:
		return s.Extract
	case migration.StageInstall:
		return s.Install
	case migration.StageSchemaUpgrade:
		return s.SchemaUpgrade
	case migration.StageDataMigrate:
		return s.DataMigrate
	}
	return StageConfig{}
}

// AwaitConfig bounds how long a stage waits for its upstream marker.
type AwaitConfig struct {
	// Timeout is the shortest wait of any stage. Stages whose upstream
	// stages may run longer wait for that budget instead.
	Timeout         time.Duration `yaml:"timeout"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
}

// Request builds the gate input from the configuration.
func (c *Config) Request() migration.Request {
	return migration.Request{
		Enabled:             c.Migration.Enabled,
		AutoDetect:          c.Migration.AutoDetect,
		FromVersion:         c.Migration.FromVersion,
		ToVersion:           c.ToVersion,
		BackupEnabled:       c.Migration.BackupEnabled,
		SkipPluginMigration: c.Migration.SkipPluginMigration,
		SkipMode:            c.Migration.SkipMode,
		MarketplaceURL:      c.Migration.MarketplaceURL,
		Workers: migration.Workers{
			Extract: c.Migration.Workers.Extract,
			Install: c.Migration.Workers.Install,
		},
	}
}

// WithRequest returns a copy of c carrying the fields of req.
func (c *Config) WithRequest(req migration.Request) *Config {
	out := *c
	out.ToVersion = req.ToVersion
	out.Migration.Enabled = req.Enabled
	out.Migration.AutoDetect = req.AutoDetect
	out.Migration.FromVersion = req.FromVersion
	out.Migration.BackupEnabled = req.BackupEnabled
	out.Migration.SkipPluginMigration = req.SkipPluginMigration
	out.Migration.SkipMode = req.SkipMode
	out.Migration.MarketplaceURL = req.MarketplaceURL
	out.Migration.Workers = WorkersConfig{Extract: req.Workers.Extract, Install: req.Workers.Install}
	return &out
}

// ImageRef returns the fully qualified stage image reference.
func (e ExecutionConfig) ImageRef() string {
	ref := e.Image + ":" + e.Tag
	if e.ImageRegistry == "" {
		return ref
	}
	return strings.TrimSuffix(e.ImageRegistry, "/") + "/" + ref
}
