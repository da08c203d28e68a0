package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/record"
	"github.com/teranos/histsync/version"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithRetry(2, time.Millisecond, 5*time.Millisecond),
	}, opts...)
	c, err := New(srv.URL, "tok", time.Second, 5*time.Second, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(version.Header, version.Protocol)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New("ftp://example.com", "", time.Second, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
	assert.NotEmpty(t, errors.GetAllHints(err))

	_, err = New("https://example.com", "", 0, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestStatus(t *testing.T) {
	host := record.NewHostID()
	want := record.NewStatus()
	want.Set(host, "history", 42)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, RecordPath, r.URL.Path)
		assert.Equal(t, "Token tok", r.Header.Get("Authorization"))
		assert.Equal(t, version.UserAgent(), r.Header.Get("User-Agent"))
		writeJSON(w, http.StatusOK, want)
	})

	got, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStatusEmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	got, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got.Hosts)
	assert.Equal(t, 0, got.Len())
}

func TestNextRecords(t *testing.T) {
	host := record.NewHostID()
	page := []record.Record{
		{ID: uuid.New(), Host: host, Tag: "history", Idx: 10, Timestamp: 1, Version: "v0", Data: []byte("a")},
		{ID: uuid.New(), Host: host, Tag: "history", Idx: 11, Timestamp: 2, Version: "v0", Data: []byte("b")},
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, NextRecordPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, host.String(), q.Get("host"))
		assert.Equal(t, "history", q.Get("tag"))
		assert.Equal(t, "10", q.Get("start"))
		assert.Equal(t, "2", q.Get("count"))
		writeJSON(w, http.StatusOK, page)
	})

	got, err := c.NextRecords(context.Background(), host, "history", 10, 2)
	require.NoError(t, err)
	assert.Equal(t, page, got)
}

func TestPostRecords(t *testing.T) {
	host := record.NewHostID()
	page := []record.Record{{ID: uuid.New(), Host: host, Tag: "kv", Idx: 0, Version: "v0", Data: []byte("k=v")}}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var got []record.Record
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, page, got)
		writeJSON(w, http.StatusOK, map[string]int{"stored": len(got)})
	})

	require.NoError(t, c.PostRecords(context.Background(), page))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		marker error
	}{
		{http.StatusUnauthorized, errors.ErrUnauthorized},
		{http.StatusTooManyRequests, errors.ErrRateLimited},
		{http.StatusNotFound, errors.ErrNotFound},
		{http.StatusBadRequest, errors.ErrInvalidRequest},
		{http.StatusConflict, errors.ErrInvalidRequest},
		{http.StatusInternalServerError, nil},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]string{"error": "nope"})
			}, WithRetry(0, time.Millisecond, time.Millisecond))

			_, err := c.Status(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRequest))
			if tt.marker != nil {
				assert.True(t, errors.Is(err, tt.marker))
			}
			assert.Contains(t, errors.FlattenDetails(err), "nope")
		})
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
			return
		}
		writeJSON(w, http.StatusOK, record.NewStatus())
	})

	_, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGivesUpAfterRetryBudget(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
	})

	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequest))
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
}

func TestVersionMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(version.Header, "99.0.0")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"hosts":{}}`))
	})

	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequest))
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestMissingVersionHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"hosts":{}}`))
	})

	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), version.Header)
}

func TestCancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, record.NewStatus())
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Status(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, ErrRequest))
}
