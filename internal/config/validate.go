package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks values the struct tags cannot express. Load calls it.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", c.Server.Port)
	}
	if c.Server.SyncRateLimit < 1 {
		return fmt.Errorf("server.sync_rate_limit must be > 0 (got %d)", c.Server.SyncRateLimit)
	}

	if err := validateURL(c.Backend.URL); err != nil {
		return fmt.Errorf("backend.url: %w", err)
	}
	if c.Backend.ProbeURL != "" {
		if err := validateURL(c.Backend.ProbeURL); err != nil {
			return fmt.Errorf("backend.probe_url: %w", err)
		}
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be > 0 (got %v)", c.Backend.Timeout)
	}

	if c.Sync.DrainDelay < 0 {
		return fmt.Errorf("sync.drain_delay must be >= 0 (got %v)", c.Sync.DrainDelay)
	}
	if c.Sync.Probe && c.Sync.ProbeInterval <= 0 {
		return fmt.Errorf("sync.probe_interval must be > 0 (got %v)", c.Sync.ProbeInterval)
	}
	if c.Sync.PersistDebounce <= 0 {
		return fmt.Errorf("sync.persist_debounce must be > 0 (got %v)", c.Sync.PersistDebounce)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Export.S3Bucket != "" && (c.Export.S3AccessKey == "" || c.Export.S3SecretKey == "") {
		return fmt.Errorf("export.s3_access_key and export.s3_secret_key are required when export.s3_bucket is set")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// S3Enabled reports whether archives are uploaded.
func (e ExportConfig) S3Enabled() bool {
	return e.S3Bucket != ""
}
