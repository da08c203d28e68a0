package commands

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/histsync/am"
	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/record"
	"github.com/teranos/histsync/server"
	"github.com/teranos/histsync/store"
	syncPkg "github.com/teranos/histsync/sync"
)

// testConfig points every path at a fresh temp dir.
func testConfig(t *testing.T) *am.Config {
	t.Helper()
	t.Setenv(am.DirEnvVar, t.TempDir())
	t.Chdir(t.TempDir())
	am.Reset()
	t.Cleanup(am.Reset)
	return am.Defaults()
}

func TestPushCommandQuotesWords(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	first, err := pushCommand(ctx, cfg, "history", []string{"git", "commit", "-m", "fix: a typo"})
	require.NoError(t, err)
	assert.Equal(t, `git commit -m 'fix: a typo'`, string(first.Data))
	assert.Equal(t, record.Idx(0), first.Idx)
	assert.Equal(t, RecordVersion, first.Version)

	second, err := pushCommand(ctx, cfg, "history", []string{"ls"})
	require.NoError(t, err)
	assert.Equal(t, record.Idx(1), second.Idx)
	assert.Equal(t, first.Host, second.Host, "host id persists between pushes")

	_, err = pushCommand(ctx, cfg, "", []string{"ls"})
	require.Error(t, err)
}

func TestStatusTableMarksThisHost(t *testing.T) {
	self := record.NewHostID()
	other := record.NewHostID()
	status := record.NewStatus()
	status.Set(self, "history", 3)
	status.Set(other, "history", 5)

	data := statusTable(status, self)
	require.Len(t, data, 3)
	assert.Equal(t, []string{"Host", "Tag", "Records"}, data[0])

	var marked int
	for _, row := range data[1:] {
		if row[0] == self.String()+" (this host)" {
			marked++
			assert.Equal(t, "3", row[2])
		}
	}
	assert.Equal(t, 1, marked)
}

func TestSyncLockIsExclusive(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "records.db")

	lock, err := acquireSyncLock(dbPath)
	require.NoError(t, err)

	_, err = acquireSyncLock(dbPath)
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))

	require.NoError(t, lock.Unlock())
	again, err := acquireSyncLock(dbPath)
	require.NoError(t, err)
	again.Unlock()
}

func TestDescribe(t *testing.T) {
	host := record.NewHostID()
	five := record.Idx(5)

	local, remote, n := describe(syncPkg.Upload{Host: host, Tag: "t", Local: 8, Remote: &five})
	assert.Equal(t, []string{"8", "5", "3"}, []string{local, remote, n})

	local, remote, n = describe(syncPkg.Download{Host: host, Tag: "t", Remote: 4})
	assert.Equal(t, []string{"-", "4", "4"}, []string{local, remote, n})

	local, remote, n = describe(syncPkg.Noop{Host: host, Tag: "t"})
	assert.Equal(t, []string{"-", "-", "0"}, []string{local, remote, n})
}

func TestRunSyncAgainstServer(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	serverStore, serverDB, err := openStore(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { serverDB.Close() })
	srv := httptest.NewServer(server.New(serverStore, server.WithTokens([]string{"tok"})).Handler())
	t.Cleanup(srv.Close)

	t.Setenv("HISTSYNC_SYNC_ADDRESS", srv.URL)
	t.Setenv("HISTSYNC_SYNC_TOKEN", "tok")

	for _, words := range [][]string{{"ls"}, {"cd", "/tmp"}, {"make", "test"}} {
		_, err := pushCommand(ctx, cfg, "history", words)
		require.NoError(t, err)
	}

	SyncCmd.SetContext(ctx)
	require.NoError(t, runSync(SyncCmd, nil))

	status, err := serverStore.Status(ctx)
	require.NoError(t, err)
	host, err := am.LoadHostID(cfg.Host.IDPath)
	require.NoError(t, err)
	n, ok := status.Get(host, "history")
	require.True(t, ok)
	assert.Equal(t, record.Idx(3), n)

	// second pass has nothing to do
	require.NoError(t, runSync(SyncCmd, nil))
}

func TestRunSyncLocalStoreFailure(t *testing.T) {
	testConfig(t)
	t.Setenv("HISTSYNC_DATABASE_PATH", t.TempDir())

	SyncCmd.SetContext(context.Background())
	err := runSync(SyncCmd, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncPkg.ErrLocalStore))
	assert.False(t, errors.Is(err, syncPkg.ErrOperational))
}

func TestRunSyncRefusedBatchHasHint(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	serverStore, serverDB, err := openStore(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { serverDB.Close() })
	srv := httptest.NewServer(server.New(serverStore).Handler())
	t.Cleanup(srv.Close)
	t.Setenv("HISTSYNC_SYNC_ADDRESS", srv.URL)

	var pushed []record.Record
	for _, words := range [][]string{{"ls"}, {"pwd"}} {
		rec, err := pushCommand(ctx, cfg, "history", words)
		require.NoError(t, err)
		pushed = append(pushed, rec)
	}

	// the server already holds a different first record, and the local
	// second record's id under another tag
	first := pushed[0]
	first.ID = uuid.New()
	misplaced := pushed[1]
	misplaced.Tag = "kv"
	misplaced.Idx = 0
	require.NoError(t, serverStore.PushBatch(ctx, []record.Record{first, misplaced}))

	SyncCmd.SetContext(ctx)
	err = runSync(SyncCmd, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncPkg.ErrRemoteRequest))
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Contains(t, errors.FlattenHints(err), "histsync status")

	status, err := serverStore.Status(ctx)
	require.NoError(t, err)
	n, _ := status.Get(pushed[0].Host, "history")
	assert.Equal(t, record.Idx(1), n)
}

func TestOpenStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "records.db")
	st, database, err := openStore(path)
	require.NoError(t, err)
	defer database.Close()
	assert.IsType(t, &store.Store{}, st)
	assert.FileExists(t, path)
}
