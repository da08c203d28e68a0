// Package client talks to a histsync sync server over HTTP. A Client
// satisfies sync.Remote.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/internal/httpclient"
	"github.com/teranos/histsync/logger"
	"github.com/teranos/histsync/record"
	"github.com/teranos/histsync/version"
)

// API paths, relative to the configured address.
const (
	RecordPath     = "/api/v0/record"
	NextRecordPath = "/api/v0/record/next"
)

// Retry backoff window used unless WithRetry overrides it.
const (
	DefaultRetryMax     = 2
	DefaultRetryWaitMin = 250 * time.Millisecond
	DefaultRetryWaitMax = 2 * time.Second
)

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 4 << 10

var (
	// ErrRequest marks every failure performing a request or decoding its response.
	ErrRequest = errors.New("sync server request failed")

	// ErrConfig marks an unusable address, token or timeout.
	ErrConfig = errors.New("invalid sync client configuration")
)

// A wrapper around zap.SugaredLogger to make it compatible with
// retryablehttp.LeveledLogger interface.
type retryableHttpLogger struct {
	inner *zap.SugaredLogger
}

func (r retryableHttpLogger) Error(msg string, args ...any) { r.inner.Errorw(msg, args...) }
func (r retryableHttpLogger) Info(msg string, args ...any)  { r.inner.Infow(msg, args...) }
func (r retryableHttpLogger) Warn(msg string, args ...any)  { r.inner.Warnw(msg, args...) }
func (r retryableHttpLogger) Debug(msg string, args ...any) { r.inner.Debugw(msg, args...) }

// Client is a sync server client.
type Client struct {
	baseURL *url.URL
	token   string
	http    *retryablehttp.Client
	log     *zap.SugaredLogger

	versionChecked atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = l }
}

// WithRetryMax overrides the retry budget, keeping the default backoff.
func WithRetryMax(max int) Option {
	return func(c *Client) { c.http.RetryMax = max }
}

// WithRetry overrides the retry budget and backoff window.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = max
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

// New returns a client for the server at address. connectTimeout bounds
// dialing, requestTimeout bounds each attempt end to end.
func New(address, token string, connectTimeout, requestTimeout time.Duration, opts ...Option) (*Client, error) {
	baseURL, err := httpclient.ParseBaseURL(address)
	if err != nil {
		return nil, errors.WithHint(errors.Mark(errors.Wrap(err, "sync address"), ErrConfig),
			"set sync.address to the server URL, e.g. https://sync.example.com")
	}
	if connectTimeout <= 0 || requestTimeout <= 0 {
		return nil, errors.Mark(
			errors.Newf("timeouts must be positive (connect %s, request %s)", connectTimeout, requestTimeout),
			ErrConfig)
	}

	c := &Client{
		baseURL: baseURL,
		token:   token,
		http: &retryablehttp.Client{
			HTTPClient: httpclient.New(httpclient.Options{
				ConnectTimeout: connectTimeout,
				RequestTimeout: requestTimeout,
			}),
			RetryMax:     DefaultRetryMax,
			RetryWaitMin: DefaultRetryWaitMin,
			RetryWaitMax: DefaultRetryWaitMax,
			Backoff:      retryablehttp.DefaultBackoff,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
			ErrorHandler: retryablehttp.PassthroughErrorHandler,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrNop(c.log).With(logger.FieldComponent, "client", logger.FieldAddress, baseURL.Redacted())
	c.http.Logger = retryableHttpLogger{inner: c.log}
	c.http.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		c.log.Debugw("Response received",
			logger.FieldMethod, resp.Request.Method,
			logger.FieldPath, resp.Request.URL.Path,
			logger.FieldStatus, resp.StatusCode,
		)
	}

	return c, nil
}

// Address returns the normalised server address.
func (c *Client) Address() string {
	return c.baseURL.String()
}

// Status fetches the server's chain summary.
func (c *Client) Status(ctx context.Context) (record.Status, error) {
	var status record.Status
	if err := c.do(ctx, http.MethodGet, RecordPath, nil, nil, &status); err != nil {
		return record.Status{}, err
	}
	if status.Hosts == nil {
		status = record.NewStatus()
	}
	return status, nil
}

// PostRecords uploads one page of records.
func (c *Client) PostRecords(ctx context.Context, records []record.Record) error {
	body, err := json.Marshal(records)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to encode records"), ErrRequest)
	}
	return c.do(ctx, http.MethodPost, RecordPath, nil, body, nil)
}

// NextRecords fetches up to limit records of a chain starting at from.
func (c *Client) NextRecords(ctx context.Context, host record.HostID, tag string, from record.Idx, limit uint64) ([]record.Record, error) {
	query := url.Values{}
	query.Set("host", host.String())
	query.Set("tag", tag)
	query.Set("start", strconv.FormatUint(from, 10))
	query.Set("count", strconv.FormatUint(limit, 10))

	var records []record.Record
	if err := c.do(ctx, http.MethodGet, NextRecordPath, query, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	u := c.baseURL.JoinPath(path)
	u.RawQuery = query.Encode()

	var reqBody any
	if body != nil {
		reqBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to build %s %s", method, path), ErrRequest)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "%s %s", method, path), ErrRequest)
	}
	defer resp.Body.Close()

	c.log.Debugw("Request complete",
		logger.FieldMethod, method,
		logger.FieldPath, path,
		logger.FieldStatus, resp.StatusCode,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)

	if err := c.checkVersion(resp); err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method, path, resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Mark(errors.Wrapf(err, "failed to decode %s %s response", method, path), ErrRequest)
	}
	return nil
}

// checkVersion verifies the server protocol once per client.
func (c *Client) checkVersion(resp *http.Response) error {
	if c.versionChecked.Load() {
		return nil
	}
	remote := resp.Header.Get(version.Header)
	if remote == "" {
		return errors.WithHintf(
			errors.Mark(errors.Newf("response from %s carries no %s header", c.baseURL.Redacted(), version.Header), ErrRequest),
			"check that sync.address points at a histsync server")
	}
	if err := version.CheckCompatible(remote); err != nil {
		return errors.Mark(err, ErrRequest)
	}
	c.versionChecked.Store(true)
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

// statusError turns a non-2xx response into an ErrRequest, additionally
// marked with the matching errors sentinel where one exists.
func statusError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := string(bytes.TrimSpace(raw))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	}

	err := errors.Newf("%s %s: server returned %s", method, path, resp.Status)
	if msg != "" {
		err = errors.WithDetailf(err, "server said: %s", msg)
	}
	err = errors.Mark(err, ErrRequest)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		err = errors.WithHint(errors.Mark(err, errors.ErrUnauthorized),
			"check sync.token (or HISTSYNC_SYNC_TOKEN) matches a token the server accepts")
	case http.StatusTooManyRequests:
		err = errors.Mark(err, errors.ErrRateLimited)
	case http.StatusNotFound:
		err = errors.Mark(err, errors.ErrNotFound)
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		err = errors.Mark(err, errors.ErrInvalidRequest)
	}
	return err
}
