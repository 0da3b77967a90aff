package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/imamik/stagehand/internal/migration"
)

// Environment variables set on every stage job and read by the runner.
const (
	EnvRunID           = "STAGEHAND_RUN_ID"
	EnvNamespace       = "STAGEHAND_NAMESPACE"
	EnvRelease         = "STAGEHAND_RELEASE"
	EnvStatusRecord    = "STAGEHAND_STATUS_RECORD"
	EnvChain           = "STAGEHAND_CHAIN"
	EnvFromVersion     = "STAGEHAND_FROM_VERSION"
	EnvToVersion       = "STAGEHAND_TO_VERSION"
	EnvArtifactBackend = "STAGEHAND_ARTIFACT_BACKEND"
	EnvArtifactDir     = "STAGEHAND_ARTIFACT_DIR"
	EnvS3Endpoint      = "STAGEHAND_S3_ENDPOINT"
	EnvS3Region        = "STAGEHAND_S3_REGION"
	EnvS3Bucket        = "STAGEHAND_S3_BUCKET"
	EnvS3PathStyle     = "STAGEHAND_S3_PATH_STYLE"
	EnvS3AccessKey     = "STAGEHAND_S3_ACCESS_KEY"
	EnvS3SecretKey     = "STAGEHAND_S3_SECRET_KEY"
	EnvDBHost          = "STAGEHAND_DB_HOST"
	EnvDBPort          = "STAGEHAND_DB_PORT"
	EnvDBName          = "STAGEHAND_DB_NAME"
	EnvDBSSLMode       = "STAGEHAND_DB_SSLMODE"
	EnvDBUser          = "STAGEHAND_DB_USER"
	EnvDBPassword      = "STAGEHAND_DB_PASSWORD"
	EnvMarketplaceURL  = "STAGEHAND_MARKETPLACE_URL"
	EnvPluginNamespace = "STAGEHAND_PLUGIN_NAMESPACE"
	EnvExtractWorkers  = "STAGEHAND_EXTRACT_WORKERS"
	EnvInstallWorkers  = "STAGEHAND_INSTALL_WORKERS"
	EnvBackupEnabled   = "STAGEHAND_BACKUP_ENABLED"
	EnvRetryLimit      = "STAGEHAND_RETRY_LIMIT"
	EnvDeadline        = "STAGEHAND_DEADLINE"
	EnvAwaitTimeout    = "STAGEHAND_AWAIT_TIMEOUT"
	EnvAwaitInitial    = "STAGEHAND_AWAIT_INITIAL_INTERVAL"
	EnvAwaitMax        = "STAGEHAND_AWAIT_MAX_INTERVAL"
	EnvPushgatewayURL  = "STAGEHAND_PUSHGATEWAY_URL"
)

// DefaultArtifactDir is where the artifact volume is mounted in stage pods.
const DefaultArtifactDir = "/artifacts"

// StageEnv is the runner configuration of one stage pod.
type StageEnv struct {
	RunID        string
	Namespace    string
	Release      string
	StatusRecord string

	// Chain lists the stages of this run in order.
	Chain []migration.StageName

	FromVersion string
	ToVersion   string

	ArtifactBackend ArtifactBackend
	ArtifactDir     string
	S3Endpoint      string
	S3Region        string
	S3Bucket        string
	S3PathStyle     bool
	S3AccessKey     string
	S3SecretKey     string

	DBHost     string
	DBPort     int
	DBName     string
	DBSSLMode  string
	DBUser     string
	DBPassword string

	MarketplaceURL  string
	PluginNamespace string
	ExtractWorkers  int
	InstallWorkers  int
	BackupEnabled   bool

	RetryLimit           int
	Deadline             time.Duration
	AwaitTimeout         time.Duration
	AwaitInitialInterval time.Duration
	AwaitMaxInterval     time.Duration

	PushgatewayURL string
}

// LoadStageEnv loads the runner configuration from environment variables.
// Identity variables are required; everything else falls back to the
// launch defaults when unset or invalid.
//
// Environment Variables (selection):
//   - STAGEHAND_RUN_ID, STAGEHAND_NAMESPACE, STAGEHAND_STATUS_RECORD, STAGEHAND_CHAIN (required)
//   - STAGEHAND_RETRY_LIMIT (default: 3)
//   - STAGEHAND_DEADLINE (default: 30m)
//   - STAGEHAND_AWAIT_TIMEOUT (default: 2h)
//   - STAGEHAND_AWAIT_INITIAL_INTERVAL (default: 5s)
//   - STAGEHAND_AWAIT_MAX_INTERVAL (default: 1m)
func LoadStageEnv() (*StageEnv, error) {
	env := &StageEnv{
		RunID:        os.Getenv(EnvRunID),
		Namespace:    os.Getenv(EnvNamespace),
		Release:      os.Getenv(EnvRelease),
		StatusRecord: os.Getenv(EnvStatusRecord),
		FromVersion:  os.Getenv(EnvFromVersion),
		ToVersion:    os.Getenv(EnvToVersion),

		ArtifactBackend: ArtifactBackend(parseString(EnvArtifactBackend, string(BackendVolume))),
		ArtifactDir:     parseString(EnvArtifactDir, DefaultArtifactDir),
		S3Endpoint:      os.Getenv(EnvS3Endpoint),
		S3Region:        os.Getenv(EnvS3Region),
		S3Bucket:        os.Getenv(EnvS3Bucket),
		S3PathStyle:     parseBool(EnvS3PathStyle, false),
		S3AccessKey:     os.Getenv(EnvS3AccessKey),
		S3SecretKey:     os.Getenv(EnvS3SecretKey),

		DBHost:     os.Getenv(EnvDBHost),
		DBPort:     parseInt(EnvDBPort, DefaultDatabasePort),
		DBName:     os.Getenv(EnvDBName),
		DBSSLMode:  parseString(EnvDBSSLMode, DefaultSSLMode),
		DBUser:     os.Getenv(EnvDBUser),
		DBPassword: os.Getenv(EnvDBPassword),

		MarketplaceURL:  os.Getenv(EnvMarketplaceURL),
		PluginNamespace: parseString(EnvPluginNamespace, DefaultPluginNamespace),
		ExtractWorkers:  parseInt(EnvExtractWorkers, DefaultExtractWorkers),
		InstallWorkers:  parseInt(EnvInstallWorkers, DefaultInstallWorkers),
		BackupEnabled:   parseBool(EnvBackupEnabled, false),

		RetryLimit:           parseInt(EnvRetryLimit, DefaultRetryLimit),
		Deadline:             parseDuration(EnvDeadline, DefaultDeadlines[migration.StageExtract]),
		AwaitTimeout:         parseDuration(EnvAwaitTimeout, DefaultAwaitTimeout),
		AwaitInitialInterval: parseDuration(EnvAwaitInitial, DefaultAwaitInitialInterval),
		AwaitMaxInterval:     parseDuration(EnvAwaitMax, DefaultAwaitMaxInterval),

		PushgatewayURL: os.Getenv(EnvPushgatewayURL),
	}

	for name, val := range map[string]string{
		EnvRunID:        env.RunID,
		EnvNamespace:    env.Namespace,
		EnvStatusRecord: env.StatusRecord,
	} {
		if val == "" {
			return nil, fmt.Errorf("%s is required", name)
		}
	}

	chain, err := ParseChain(os.Getenv(EnvChain))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvChain, err)
	}
	env.Chain = chain

	return env, nil
}

// DatabaseURL returns the connection string for the application database.
func (e *StageEnv) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(e.DBUser, e.DBPassword),
		Host:     net.JoinHostPort(e.DBHost, strconv.Itoa(e.DBPort)),
		Path:     "/" + e.DBName,
		RawQuery: url.Values{"sslmode": []string{e.DBSSLMode}}.Encode(),
	}
	return u.String()
}

// FormatChain is the inverse of ParseChain.
func FormatChain(chain []migration.StageName) string {
	parts := make([]string, len(chain))
	for i, s := range chain {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

// ParseChain parses a comma separated list of stage names. The stages must be
// known and appear in chain order.
func ParseChain(s string) ([]migration.StageName, error) {
	if s == "" {
		return nil, fmt.Errorf("chain is empty")
	}
	var chain []migration.StageName
	last := 0
	for _, part := range strings.Split(s, ",") {
		name, err := migration.ParseStageName(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if name.Ordinal() <= last {
			return nil, fmt.Errorf("stage %q is out of order", name)
		}
		last = name.Ordinal()
		chain = append(chain, name)
	}
	return chain, nil
}

// parseString returns the variable's value or defaultVal when unset.
func parseString(envVar, defaultVal string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultVal
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}

func parseBool(envVar string, defaultVal bool) bool {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}

	return b
}
