package commands

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/histsync/am"
	"github.com/teranos/histsync/client"
	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/internal/util"
	"github.com/teranos/histsync/logger"
	"github.com/teranos/histsync/record"
	syncPkg "github.com/teranos/histsync/sync"
)

// SyncCmd runs one sync pass
var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronise local history with the sync server",
	Long: `Run one sync pass: compare per-chain record counts with the server,
upload every chain the server is behind on, and download every chain this
host is behind on.

Only one pass may run against a database at a time; a second invocation
fails immediately instead of waiting.

Examples:
  histsync sync              # Sync with progress bars
  histsync sync --dry-run    # Show the planned operations only`,
	RunE: runSync,
}

var syncDryRun bool

func init() {
	SyncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Print the planned operations without transferring records")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	lock, err := acquireSyncLock(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	st, database, err := openStore(cfg.Database.Path)
	if err != nil {
		return syncPkg.LocalStoreError(err, "failed to open local store")
	}
	defer database.Close()

	remote, err := client.New(cfg.Sync.Address, cfg.Sync.Token,
		cfg.Sync.ConnectTimeout(), cfg.Sync.RequestTimeout(),
		client.WithLogger(logger.ComponentLogger("client")),
		client.WithRetryMax(cfg.Sync.RetryMax),
	)
	if err != nil {
		return syncPkg.OperationalError(err, "failed to build sync client")
	}

	progress := &progressBars{}
	opts := []syncPkg.Option{
		syncPkg.WithPageSize(uint64(cfg.Sync.PageSize)),
		syncPkg.WithLogger(logger.ComponentLogger("sync")),
	}
	if !logger.JSONOutput {
		opts = append(opts, syncPkg.WithProgress(progress))
	}
	syncer := syncPkg.New(st, remote, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if syncDryRun {
		ops, err := syncer.Plan(ctx)
		if err != nil {
			return err
		}
		printPlan(ops)
		return nil
	}

	result, err := syncer.Sync(ctx)
	progress.Close()
	if err != nil {
		if result.Uploaded > 0 || len(result.Downloaded) > 0 {
			pterm.Warning.Printf("Sync failed after uploading %d and downloading %d records\n",
				result.Uploaded, len(result.Downloaded))
		}
		if errors.IsInvalidRequestError(err) {
			err = errors.WithHint(err, "the server refused records from this host; compare 'histsync status' with the server's chains")
		}
		return err
	}

	pterm.Success.Printf("Sync complete: %d uploaded, %d downloaded\n", result.Uploaded, len(result.Downloaded))
	return nil
}

// acquireSyncLock takes an exclusive, non-blocking lock beside the database
// so two passes never interleave on the same store.
func acquireSyncLock(dbPath string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), am.DefaultDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory for %s", dbPath)
	}
	lock := flock.New(dbPath + ".sync.lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to lock %s", lock.Path())
	}
	if !locked {
		return nil, errors.WithHintf(
			errors.Newf("another sync is already running against %s", dbPath),
			"wait for it to finish; if none is running, remove %s", lock.Path())
	}
	return lock, nil
}

func printPlan(ops []syncPkg.Operation) {
	if len(ops) == 0 {
		pterm.Info.Println("Already in sync")
		return
	}

	data := pterm.TableData{{"Operation", "Host", "Tag", "Local", "Remote", "Records"}}
	for _, op := range ops {
		local, remote, n := describe(op)
		data = append(data, []string{
			op.Kind().String(),
			op.Key().Host.String(),
			op.Key().Tag,
			local,
			remote,
			n,
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func describe(op syncPkg.Operation) (local, remote, count string) {
	switch o := op.(type) {
	case syncPkg.Upload:
		return pterm.Sprint(o.Local), optional(o.Remote), pterm.Sprint(o.Local - util.Deref(o.Remote, 0))
	case syncPkg.Download:
		return optional(o.Local), pterm.Sprint(o.Remote), pterm.Sprint(o.Remote - util.Deref(o.Local, 0))
	default:
		return "-", "-", "0"
	}
}

func optional(idx *record.Idx) string {
	if idx == nil {
		return "-"
	}
	return pterm.Sprint(*idx)
}
