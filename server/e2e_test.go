package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/histsync/client"
	"github.com/teranos/histsync/errors"
	histtest "github.com/teranos/histsync/internal/testing"
	"github.com/teranos/histsync/record"
	"github.com/teranos/histsync/store"
	syncPkg "github.com/teranos/histsync/sync"
)

// TestSyncOverHTTP runs two installations against one server and checks
// that every chain converges and a repeated pass moves nothing.
func TestSyncOverHTTP(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t).Sugar()
	srv, _ := newTestServer(t, WithTokens([]string{"tok"}), WithMaxPage(4))

	newHost := func() (*store.Store, record.HostID, *syncPkg.Syncer) {
		st := store.New(histtest.CreateTestDB(t), store.WithLogger(log))
		c, err := client.New(srv.URL, "tok", time.Second, 5*time.Second, client.WithLogger(log))
		require.NoError(t, err)
		return st, record.NewHostID(), syncPkg.New(st, c, syncPkg.WithPageSize(3), syncPkg.WithLogger(log))
	}

	laptopStore, laptop, laptopSync := newHost()
	desktopStore, desktop, desktopSync := newHost()

	for i := 0; i < 7; i++ {
		_, err := laptopStore.Append(ctx, laptop, "history", "v0", []byte("laptop"))
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := desktopStore.Append(ctx, desktop, "history", "v0", []byte("desktop"))
		require.NoError(t, err)
	}
	_, err := desktopStore.Append(ctx, desktop, "kv", "v0", []byte("k=v"))
	require.NoError(t, err)

	res, err := laptopSync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), res.Uploaded)
	assert.Empty(t, res.Downloaded)

	res, err = desktopSync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), res.Uploaded)
	assert.Len(t, res.Downloaded, 7)

	res, err = laptopSync.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Uploaded)
	assert.Len(t, res.Downloaded, 6)

	laptopStatus, err := laptopStore.Status(ctx)
	require.NoError(t, err)
	desktopStatus, err := desktopStore.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, laptopStatus, desktopStatus)
	assert.Empty(t, record.Compare(laptopStatus, desktopStatus))

	for _, s := range []*syncPkg.Syncer{laptopSync, desktopSync} {
		res, err := s.Sync(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.Uploaded)
		assert.Empty(t, res.Downloaded)
	}

	laptopRecords, err := laptopStore.Next(ctx, desktop, "history", 0, 100)
	require.NoError(t, err)
	desktopRecords, err := desktopStore.Next(ctx, desktop, "history", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, desktopRecords, laptopRecords)
}

func TestSyncRejectedToken(t *testing.T) {
	srv, _ := newTestServer(t, WithTokens([]string{"tok"}))
	st := store.New(histtest.CreateTestDB(t))
	c, err := client.New(srv.URL, "wrong", time.Second, 5*time.Second)
	require.NoError(t, err)

	_, err = syncPkg.New(st, c).Sync(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncPkg.ErrRemoteRequest))
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}
