package am

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Default values
const (
	DefaultSyncAddress           = "http://127.0.0.1:8888"
	DefaultServerAddress         = "127.0.0.1:8888"
	DefaultConnectTimeoutSeconds = 5
	DefaultRequestTimeoutSeconds = 30
	DefaultPageSize              = 100
	DefaultRetryMax              = 2
	DefaultRequestsPerSecond     = 50.0
	DefaultBurst                 = 100
)

// Dir returns the histsync state directory: $HISTSYNC_DIR, or ~/.histsync.
func Dir() string {
	if dir := os.Getenv(DirEnvVar); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".histsync"
	}
	return filepath.Join(home, ".histsync")
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	dir := Dir()

	v.SetDefault("database.path", filepath.Join(dir, "records.db"))
	v.SetDefault("host.id_path", filepath.Join(dir, "host_id"))

	v.SetDefault("sync.address", DefaultSyncAddress)
	v.SetDefault("sync.connect_timeout_seconds", DefaultConnectTimeoutSeconds)
	v.SetDefault("sync.request_timeout_seconds", DefaultRequestTimeoutSeconds)
	v.SetDefault("sync.page_size", DefaultPageSize)
	v.SetDefault("sync.retry_max", DefaultRetryMax)

	v.SetDefault("server.address", DefaultServerAddress)
	v.SetDefault("server.database_path", filepath.Join(dir, "server.db"))
	v.SetDefault("server.requests_per_second", DefaultRequestsPerSecond)
	v.SetDefault("server.burst", DefaultBurst)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("sync.token", "HISTSYNC_SYNC_TOKEN")
}

// Defaults returns a Config holding only default values.
func Defaults() *Config {
	dir := Dir()
	return &Config{
		Database: DatabaseConfig{Path: filepath.Join(dir, "records.db")},
		Host:     HostConfig{IDPath: filepath.Join(dir, "host_id")},
		Sync: SyncConfig{
			Address:               DefaultSyncAddress,
			ConnectTimeoutSeconds: DefaultConnectTimeoutSeconds,
			RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
			PageSize:              DefaultPageSize,
			RetryMax:              DefaultRetryMax,
		},
		Server: ServerConfig{
			Address:           DefaultServerAddress,
			DatabasePath:      filepath.Join(dir, "server.db"),
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultBurst,
		},
	}
}
