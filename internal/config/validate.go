package config

import (
	"fmt"
	"net/url"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/imamik/stagehand/internal/migration"
	"github.com/imamik/stagehand/internal/util/naming"
)

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

var validAccessModes = map[string]bool{
	string(corev1.ReadWriteOnce):    true,
	string(corev1.ReadWriteMany):    true,
	string(corev1.ReadWriteOncePod): true,
}

var validPullPolicies = map[string]bool{
	string(corev1.PullAlways):       true,
	string(corev1.PullIfNotPresent): true,
	string(corev1.PullNever):        true,
}

// Validate checks the configuration for common errors and returns a detailed error if validation fails.
// Fields that only matter to a running migration are checked only when migration is enabled,
// so a disabled configuration can stay minimal.
func (c *Config) Validate() error {
	if c.Release == "" {
		return fmt.Errorf("release is required")
	}
	if errs := validation.IsDNS1123Label(c.Release); len(errs) > 0 {
		return fmt.Errorf("invalid release %q: %s", c.Release, strings.Join(errs, "; "))
	}
	if len(c.Release) > naming.MaxReleaseLength {
		return fmt.Errorf("release %q is longer than %d characters", c.Release, naming.MaxReleaseLength)
	}
	if errs := validation.IsDNS1123Label(c.Namespace); len(errs) > 0 {
		return fmt.Errorf("invalid namespace %q: %s", c.Namespace, strings.Join(errs, "; "))
	}
	if !c.Migration.SkipMode.Valid() {
		return fmt.Errorf("invalid migration.skip_mode %q: must be chain or plugin-stages", c.Migration.SkipMode)
	}

	if !c.Migration.Enabled {
		return nil
	}

	if c.ToVersion == "" {
		return fmt.Errorf("to_version is required when migration is enabled")
	}

	if err := c.validateMigration(); err != nil {
		return fmt.Errorf("migration validation failed: %w", err)
	}

	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database validation failed: %w", err)
	}

	if err := c.validateExecution(); err != nil {
		return fmt.Errorf("execution validation failed: %w", err)
	}

	if err := c.validateArtifacts(); err != nil {
		return fmt.Errorf("artifacts validation failed: %w", err)
	}

	if err := c.validateStages(); err != nil {
		return fmt.Errorf("stages validation failed: %w", err)
	}

	if err := c.validateAwait(); err != nil {
		return fmt.Errorf("await validation failed: %w", err)
	}

	return nil
}

func (c *Config) validateMigration() error {
	m := c.Migration
	if m.Workers.Extract < 1 {
		return fmt.Errorf("workers.extract must be at least 1, got %d", m.Workers.Extract)
	}
	if m.Workers.Install < 1 {
		return fmt.Errorf("workers.install must be at least 1, got %d", m.Workers.Install)
	}
	if m.SkipPluginMigration && m.SkipMode == migration.SkipChain {
		// Nothing below is used by a skipped chain.
		return nil
	}
	if !m.SkipPluginMigration {
		if m.MarketplaceURL == "" {
			return fmt.Errorf("marketplace_url is required")
		}
		u, err := url.Parse(m.MarketplaceURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid marketplace_url %q", m.MarketplaceURL)
		}
	}
	if strings.Contains(m.PluginNamespace, "/") {
		return fmt.Errorf("plugin_namespace %q must not contain '/'", m.PluginNamespace)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	db := c.Database
	if db.Host == "" {
		return fmt.Errorf("host is required")
	}
	if db.Name == "" {
		return fmt.Errorf("name is required")
	}
	if db.Port < 1 || db.Port > 65535 {
		return fmt.Errorf("invalid port %d", db.Port)
	}
	if !validSSLModes[db.SSLMode] {
		return fmt.Errorf("invalid ssl_mode %q", db.SSLMode)
	}
	if db.CredentialsSecret == "" {
		return fmt.Errorf("credentials_secret is required")
	}
	return nil
}

func (c *Config) validateExecution() error {
	ex := c.Execution
	if ex.ServiceAccount == "" {
		return fmt.Errorf("service_account is required")
	}
	if ex.ImageRegistry == "" {
		return fmt.Errorf("image_registry is required")
	}
	if !validPullPolicies[ex.PullPolicy] {
		return fmt.Errorf("invalid pull_policy %q", ex.PullPolicy)
	}
	return nil
}

func (c *Config) validateArtifacts() error {
	a := c.Artifacts
	switch a.Backend {
	case BackendVolume:
		if _, err := resource.ParseQuantity(a.Size); err != nil {
			return fmt.Errorf("invalid size %q: %w", a.Size, err)
		}
		if !validAccessModes[a.AccessMode] {
			return fmt.Errorf("invalid access_mode %q", a.AccessMode)
		}
	case BackendS3:
		if a.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required for the s3 backend")
		}
		if a.S3.Endpoint == "" {
			return fmt.Errorf("s3.endpoint is required for the s3 backend")
		}
		if a.S3.CredentialsSecret == "" {
			return fmt.Errorf("s3.credentials_secret is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid backend %q: must be volume or s3", a.Backend)
	}
	return nil
}

func (c *Config) validateStages() error {
	stages := map[string]StageConfig{
		"extract":        c.Stages.Extract,
		"install":        c.Stages.Install,
		"schema_upgrade": c.Stages.SchemaUpgrade,
		"data_migrate":   c.Stages.DataMigrate,
	}
	for name, s := range stages {
		if s.RetryLimit != nil && *s.RetryLimit < 0 {
			return fmt.Errorf("%s.retry_limit must not be negative", name)
		}
		if s.Deadline <= 0 {
			return fmt.Errorf("%s.deadline must be positive", name)
		}
		if s.Retention < 0 {
			return fmt.Errorf("%s.retention must not be negative", name)
		}
	}
	return nil
}

func (c *Config) validateAwait() error {
	a := c.Await
	if a.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if a.InitialInterval <= 0 {
		return fmt.Errorf("initial_interval must be positive")
	}
	if a.MaxInterval < a.InitialInterval {
		return fmt.Errorf("max_interval (%s) must not be shorter than initial_interval (%s)", a.MaxInterval, a.InitialInterval)
	}
	return nil
}
