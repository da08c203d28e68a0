package sync

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/histsync/logger"
	"github.com/teranos/histsync/record"
)

// DefaultPageSize is the number of records moved per request in either direction.
const DefaultPageSize uint64 = 100

// Transfer executes single operations, moving the missing records of one
// chain in pages of at most pageSize records, strictly in index order.
type Transfer struct {
	store    Store
	remote   Remote
	pageSize uint64
	progress Progress
	logger   *zap.SugaredLogger
}

// NewTransfer creates a transfer executor. A zero pageSize selects
// DefaultPageSize; nil progress and logger are replaced by no-ops.
func NewTransfer(store Store, remote Remote, pageSize uint64, progress Progress, log *zap.SugaredLogger) *Transfer {
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if progress == nil {
		progress = NopProgress{}
	}
	return &Transfer{
		store:    store,
		remote:   remote,
		pageSize: pageSize,
		progress: progress,
		logger:   logger.OrNop(log),
	}
}

// Apply executes op and returns what it moved. On error the counts cover
// the pages that were committed before the failure.
func (t *Transfer) Apply(ctx context.Context, op Operation) (uploaded uint64, downloaded []uuid.UUID, err error) {
	switch op := op.(type) {
	case Upload:
		uploaded, err = t.Upload(ctx, op)
		return uploaded, nil, err
	case Download:
		downloaded, err = t.Download(ctx, op)
		return 0, downloaded, err
	case Noop:
		return 0, nil, nil
	default:
		return 0, nil, logicError("unknown operation type %T", op)
	}
}

// Upload sends the records the remote is missing for one chain.
// Returns the number of records sent.
func (t *Transfer) Upload(ctx context.Context, op Upload) (uint64, error) {
	var start record.Idx
	if op.Remote != nil {
		start = *op.Remote
	}
	if op.Local < start {
		return 0, logicError("upload for %s has local %d behind remote %d", op.Key(), op.Local, start)
	}
	expected := op.Local - start

	t.logger.Debugw("Uploading chain",
		logger.FieldHostID, op.Host,
		logger.FieldTag, op.Tag,
		logger.FieldOffset, start,
		logger.FieldExpected, expected,
	)
	t.progress.Start(op, expected)

	var progress uint64
	for progress < expected {
		if err := ctx.Err(); err != nil {
			return progress, remoteRequestError(err, "upload of %s interrupted", op.Key())
		}

		offset := start + progress
		limit := min(t.pageSize, expected-progress)

		page, err := t.store.Next(ctx, op.Host, op.Tag, offset, limit)
		if err != nil {
			return progress, localStoreError(err, "failed to read %s from index %d", op.Key(), offset)
		}
		if err := checkPage(op.Key(), offset, limit, page); err != nil {
			return progress, err
		}

		if err := t.remote.PostRecords(ctx, page); err != nil {
			return progress, remoteRequestError(err, "failed to upload %s from index %d", op.Key(), offset)
		}

		progress += uint64(len(page))
		t.progress.Advance(op, progress, expected)
	}

	t.progress.Finish(op, progress)
	return progress, nil
}

// Download fetches the records the local store is missing for one chain.
// Returns the ids of the stored records in index order.
func (t *Transfer) Download(ctx context.Context, op Download) ([]uuid.UUID, error) {
	var start record.Idx
	if op.Local != nil {
		start = *op.Local
	}
	if op.Remote < start {
		return nil, logicError("download for %s has remote %d behind local %d", op.Key(), op.Remote, start)
	}
	expected := op.Remote - start

	t.logger.Debugw("Downloading chain",
		logger.FieldHostID, op.Host,
		logger.FieldTag, op.Tag,
		logger.FieldOffset, start,
		logger.FieldExpected, expected,
	)
	t.progress.Start(op, expected)

	ids := make([]uuid.UUID, 0, min(expected, t.pageSize))
	var progress uint64
	for progress < expected {
		if err := ctx.Err(); err != nil {
			return ids, remoteRequestError(err, "download of %s interrupted", op.Key())
		}

		offset := start + progress
		limit := min(t.pageSize, expected-progress)

		page, err := t.remote.NextRecords(ctx, op.Host, op.Tag, offset, limit)
		if err != nil {
			return ids, remoteRequestError(err, "failed to download %s from index %d", op.Key(), offset)
		}
		if err := checkPage(op.Key(), offset, limit, page); err != nil {
			return ids, err
		}

		if err := t.store.PushBatch(ctx, page); err != nil {
			return ids, localStoreError(err, "failed to store %s from index %d", op.Key(), offset)
		}

		ids = append(ids, record.IDs(page)...)
		progress += uint64(len(page))
		t.progress.Advance(op, progress, expected)
	}

	t.progress.Finish(op, progress)
	return ids, nil
}

// checkPage enforces what the paging loops rely on: every page moves the
// chain forward, stays within the requested window, and is contiguous from
// offset. An empty page means a status over-promised records, which would
// otherwise loop forever.
func checkPage(key record.Key, offset, limit uint64, page []record.Record) error {
	if len(page) == 0 {
		return logicError("no records returned for %s at index %d; status advertised more than is available", key, offset)
	}
	if uint64(len(page)) > limit {
		return logicError("page for %s at index %d has %d records, requested at most %d", key, offset, len(page), limit)
	}
	for i, r := range page {
		if r.Key() != key {
			return logicError("page for %s contains record %s from chain %s", key, r.ID, r.Key())
		}
		if want := offset + uint64(i); r.Idx != want {
			return logicError("page for %s is out of order: record %s has index %d, expected %d", key, r.ID, r.Idx, want)
		}
	}
	return nil
}
