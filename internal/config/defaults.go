package config

import (
	"time"

	"github.com/imamik/stagehand/internal/migration"
)

// Default values applied by ApplyDefaults.
const (
	DefaultNamespace       = "default"
	DefaultExtractWorkers  = 4
	DefaultInstallWorkers  = 2
	DefaultPluginNamespace = "official"
	DefaultDatabasePort    = 5432
	DefaultSSLMode         = "prefer"
	DefaultImage           = "stagehand"
	DefaultTag             = "latest"
	DefaultPullPolicy      = "IfNotPresent"
	DefaultArtifactSize    = "5Gi"
	DefaultAccessMode      = "ReadWriteOnce"
	DefaultRetryLimit      = 3
	DefaultRetention       = 24 * time.Hour

	DefaultAwaitTimeout         = 2 * time.Hour
	DefaultAwaitInitialInterval = 5 * time.Second
	DefaultAwaitMaxInterval     = time.Minute
)

// DefaultDeadlines are the per-attempt body deadlines. Schema upgrade keeps
// the 600s cap it always had; the other stages get one as well.
var DefaultDeadlines = map[migration.StageName]time.Duration{
	migration.StageExtract:       30 * time.Minute,
	migration.StageInstall:       60 * time.Minute,
	migration.StageSchemaUpgrade: 10 * time.Minute,
	migration.StageDataMigrate:   60 * time.Minute,
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}

	m := &c.Migration
	if m.SkipMode == "" {
		m.SkipMode = migration.SkipChain
	}
	if m.PluginNamespace == "" {
		m.PluginNamespace = DefaultPluginNamespace
	}
	if m.Workers.Extract == 0 {
		m.Workers.Extract = DefaultExtractWorkers
	}
	if m.Workers.Install == 0 {
		m.Workers.Install = DefaultInstallWorkers
	}

	db := &c.Database
	if db.Port == 0 {
		db.Port = DefaultDatabasePort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultSSLMode
	}
	if db.UsernameKey == "" {
		db.UsernameKey = "username"
	}
	if db.PasswordKey == "" {
		db.PasswordKey = "password"
	}

	ex := &c.Execution
	if ex.Image == "" {
		ex.Image = DefaultImage
	}
	if ex.Tag == "" {
		ex.Tag = DefaultTag
	}
	if ex.PullPolicy == "" {
		ex.PullPolicy = DefaultPullPolicy
	}

	a := &c.Artifacts
	if a.Backend == "" {
		a.Backend = BackendVolume
	}
	if a.Size == "" {
		a.Size = DefaultArtifactSize
	}
	if a.AccessMode == "" {
		a.AccessMode = DefaultAccessMode
	}
	if a.S3.AccessKeyKey == "" {
		a.S3.AccessKeyKey = "access_key"
	}
	if a.S3.SecretKeyKey == "" {
		a.S3.SecretKeyKey = "secret_key"
	}

	applyStageDefaults(&c.Stages.Extract, migration.StageExtract)
	applyStageDefaults(&c.Stages.Install, migration.StageInstall)
	applyStageDefaults(&c.Stages.SchemaUpgrade, migration.StageSchemaUpgrade)
	applyStageDefaults(&c.Stages.DataMigrate, migration.StageDataMigrate)

	if c.Await.Timeout == 0 {
		c.Await.Timeout = DefaultAwaitTimeout
	}
	if c.Await.InitialInterval == 0 {
		c.Await.InitialInterval = DefaultAwaitInitialInterval
	}
	if c.Await.MaxInterval == 0 {
		c.Await.MaxInterval = DefaultAwaitMaxInterval
	}
}

func applyStageDefaults(s *StageConfig, name migration.StageName) {
	if s.RetryLimit == nil {
		limit := DefaultRetryLimit
		s.RetryLimit = &limit
	}
	if s.Deadline == 0 {
		s.Deadline = DefaultDeadlines[name]
	}
	if s.Retention == 0 {
		s.Retention = DefaultRetention
	}
}
