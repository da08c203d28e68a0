// Package am holds histsync configuration ("I am"): where the local store
// lives, who this host is, and how to reach the sync server.
package am

import "time"

// Config represents the histsync configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database" yaml:"database"`
	Host     HostConfig     `mapstructure:"host" toml:"host" yaml:"host"`
	Sync     SyncConfig     `mapstructure:"sync" toml:"sync" yaml:"sync"`
	Server   ServerConfig   `mapstructure:"server" toml:"server" yaml:"server"`
}

// DatabaseConfig configures the local SQLite record store
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" yaml:"path"`
}

// HostConfig configures this installation's identity
type HostConfig struct {
	IDPath string `mapstructure:"id_path" toml:"id_path" yaml:"id_path"` // file holding the host uuid, created on first use
}

// SyncConfig configures the client side of sync
type SyncConfig struct {
	Address               string `mapstructure:"address" toml:"address" yaml:"address"` // e.g. "https://sync.example.com"
	Token                 string `mapstructure:"token" toml:"token,omitempty" yaml:"token"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds" toml:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" toml:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	PageSize              int    `mapstructure:"page_size" toml:"page_size" yaml:"page_size"`
	RetryMax              int    `mapstructure:"retry_max" toml:"retry_max" yaml:"retry_max"` // transport-level retries per request
}

// ConnectTimeout returns the dial timeout
func (s SyncConfig) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutSeconds) * time.Second
}

// RequestTimeout returns the whole-request timeout
func (s SyncConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// ServerConfig configures the reference sync server
type ServerConfig struct {
	Address           string   `mapstructure:"address" toml:"address" yaml:"address"`
	DatabasePath      string   `mapstructure:"database_path" toml:"database_path" yaml:"database_path"`
	Tokens            []string `mapstructure:"tokens" toml:"tokens,omitempty" yaml:"tokens"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second" toml:"requests_per_second" yaml:"requests_per_second"` // 0 = unlimited
	Burst             int      `mapstructure:"burst" toml:"burst" yaml:"burst"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0600 // config and host id may hold secrets
	DirEnvVar              = "HISTSYNC_DIR"
)
