package am

import (
	"net/url"

	"github.com/teranos/histsync/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path cannot be empty")
	}
	if c.Host.IDPath == "" {
		return errors.New("host.id_path cannot be empty")
	}

	if c.Sync.Address != "" {
		u, err := url.Parse(c.Sync.Address)
		if err != nil {
			return errors.Wrapf(err, "sync.address %q is not a valid URL", c.Sync.Address)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.Newf("sync.address must use http or https, got %q", c.Sync.Address)
		}
		if u.Host == "" {
			return errors.Newf("sync.address %q has no host", c.Sync.Address)
		}
	}

	// Zero timeouts would mean "wait forever"
	if c.Sync.ConnectTimeoutSeconds <= 0 {
		return errors.Newf("sync.connect_timeout_seconds must be > 0, got %d", c.Sync.ConnectTimeoutSeconds)
	}
	if c.Sync.RequestTimeoutSeconds <= 0 {
		return errors.Newf("sync.request_timeout_seconds must be > 0, got %d", c.Sync.RequestTimeoutSeconds)
	}
	if c.Sync.PageSize <= 0 {
		return errors.Newf("sync.page_size must be > 0, got %d", c.Sync.PageSize)
	}
	if c.Sync.RetryMax < 0 {
		return errors.Newf("sync.retry_max must be >= 0, got %d", c.Sync.RetryMax)
	}

	if c.Server.RequestsPerSecond < 0 {
		return errors.Newf("server.requests_per_second must be >= 0, got %g", c.Server.RequestsPerSecond)
	}
	if c.Server.RequestsPerSecond > 0 && c.Server.Burst <= 0 {
		return errors.Newf("server.burst must be > 0 when rate limiting, got %d", c.Server.Burst)
	}

	return nil
}
