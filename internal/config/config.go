// Package config loads cartsync settings from a YAML file and CARTSYNC_*
// environment variables.
package config

import (
	"strconv"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Sync     SyncConfig     `yaml:"sync"`
	Database DatabaseConfig `yaml:"database"`
	Export   ExportConfig   `yaml:"export"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the local HTTP API settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"CARTSYNC_HOST"             env-default:"127.0.0.1"`
	Port            int           `yaml:"port"             env:"CARTSYNC_PORT"             env-default:"8787"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"CARTSYNC_SHUTDOWN_TIMEOUT" env-default:"10s"`
	// SyncRateLimit caps manual sync and connectivity calls per client per minute.
	SyncRateLimit int `yaml:"sync_rate_limit" env:"CARTSYNC_SYNC_RATE_LIMIT" env-default:"30"`
}

// BackendConfig points at the shopping-list REST API.
type BackendConfig struct {
	URL      string        `yaml:"url"       env:"CARTSYNC_BACKEND_URL"       env-required:"true"`
	Token    string        `yaml:"token"     env:"CARTSYNC_BACKEND_TOKEN"`
	Timeout  time.Duration `yaml:"timeout"   env:"CARTSYNC_BACKEND_TIMEOUT"   env-default:"10s"`
	ProbeURL string        `yaml:"probe_url" env:"CARTSYNC_BACKEND_PROBE_URL"`
}

// SyncConfig tunes reconciliation.
type SyncConfig struct {
	ListID          string        `yaml:"list_id"          env:"CARTSYNC_LIST_ID"`
	DrainDelay      time.Duration `yaml:"drain_delay"      env:"CARTSYNC_DRAIN_DELAY"      env-default:"1s"`
	Probe           bool          `yaml:"probe"            env:"CARTSYNC_PROBE"            env-default:"true"`
	ProbeInterval   time.Duration `yaml:"probe_interval"   env:"CARTSYNC_PROBE_INTERVAL"   env-default:"15s"`
	PersistDebounce time.Duration `yaml:"persist_debounce" env:"CARTSYNC_PERSIST_DEBOUNCE" env-default:"500ms"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"CARTSYNC_DB_PATH" env-default:"cartsync.db"`
}

// ExportConfig controls list archives. S3 upload is enabled when a bucket is
// set.
type ExportConfig struct {
	Dir         string `yaml:"dir"           env:"CARTSYNC_EXPORT_DIR"        env-default:"exports"`
	Passphrase  string `yaml:"passphrase"    env:"CARTSYNC_EXPORT_PASSPHRASE"`
	S3Endpoint  string `yaml:"s3_endpoint"   env:"CARTSYNC_S3_ENDPOINT"`
	S3Region    string `yaml:"s3_region"     env:"CARTSYNC_S3_REGION"         env-default:"us-east-1"`
	S3Bucket    string `yaml:"s3_bucket"     env:"CARTSYNC_S3_BUCKET"`
	S3Prefix    string `yaml:"s3_prefix"     env:"CARTSYNC_S3_PREFIX"         env-default:"cartsync/"`
	S3AccessKey string `yaml:"s3_access_key" env:"CARTSYNC_S3_ACCESS_KEY"`
	S3SecretKey string `yaml:"s3_secret_key" env:"CARTSYNC_S3_SECRET_KEY"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"CARTSYNC_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"CARTSYNC_LOG_FORMAT" env-default:"text"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
