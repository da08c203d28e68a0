// Package httpclient builds the http.Client used to talk to a sync server.
package httpclient

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teranos/histsync/errors"
)

// DefaultMaxRedirects bounds redirect chains.
const DefaultMaxRedirects = 5

// Options configures New.
type Options struct {
	ConnectTimeout time.Duration // dial + TLS handshake
	RequestTimeout time.Duration // whole request including body
	MaxRedirects   int           // 0 = DefaultMaxRedirects
}

// New returns an http.Client with bounded connect and request times. Sync
// servers commonly live on a LAN or localhost, so private addresses are
// allowed. Redirects must stay on the same host and may not downgrade
// from https, since requests carry the sync token.
func New(opts Options) *http.Client {
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}

	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: opts.RequestTimeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   opts.ConnectTimeout,
			ExpectContinueTimeout: 1 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.Newf("stopped after %d redirects", maxRedirects)
			}
			return checkRedirect(via[0].URL, req.URL)
		},
	}
}

func checkRedirect(from, to *url.URL) error {
	if !strings.EqualFold(from.Hostname(), to.Hostname()) {
		return errors.Newf("redirect blocked: %s leaves host %s", to.Redacted(), from.Hostname())
	}
	if from.Scheme == "https" && to.Scheme != "https" {
		return errors.Newf("redirect blocked: %s downgrades from https", to.Redacted())
	}
	return nil
}

// ParseBaseURL validates a sync server address and returns it with any
// trailing slash removed.
func ParseBaseURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("address is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid address %q", raw)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, errors.Newf("scheme %q not allowed (allowed: [http https])", u.Scheme)
	}
	if u.User != nil {
		// Credentials belong in sync.token, not in the URL where they end up in logs
		return nil, errors.New("address must not contain credentials")
	}
	if u.Hostname() == "" {
		return nil, errors.Newf("address %q is missing a hostname", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, errors.Newf("address %q must not carry a query or fragment", raw)
	}

	u.Scheme = scheme
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u, nil
}
