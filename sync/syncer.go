// Package sync reconciles this host's record store with a sync server.
//
// A pass runs three phases, once each and in order:
//
//  1. Diffing: fetch the remote and local status summaries and compare them
//     chain by chain (record.Compare).
//  2. Resolving: turn each diff into an Upload, Download or Noop, sorted
//     deterministically (Operations).
//  3. Executing: run every operation in that order, one page at a time
//     (Transfer).
//
// Every chain has exactly one writer, so comparing counts is enough to know
// which side is ahead. Progress is measured against durable indices, so an
// aborted pass is resumed by simply running another one.
package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/logger"
	"github.com/teranos/histsync/record"
)

// Store is the local, durable record log.
type Store interface {
	// Status returns the record count of every chain held locally.
	Status(ctx context.Context) (record.Status, error)
	// Next returns up to limit records of a chain starting at index from.
	Next(ctx context.Context, host record.HostID, tag string, from record.Idx, limit uint64) ([]record.Record, error)
	// PushBatch appends records. Records already present are ignored.
	PushBatch(ctx context.Context, records []record.Record) error
}

// Remote is the sync server.
type Remote interface {
	// Status returns the record count of every chain the server holds.
	Status(ctx context.Context) (record.Status, error)
	// PostRecords uploads one page of records.
	PostRecords(ctx context.Context, records []record.Record) error
	// NextRecords returns up to limit records of a chain starting at index from.
	NextRecords(ctx context.Context, host record.HostID, tag string, from record.Idx, limit uint64) ([]record.Record, error)
}

// Phase is the orchestrator state during a pass.
type Phase string

const (
	PhaseDiffing   Phase = "diffing"
	PhaseResolving Phase = "resolving"
	PhaseExecuting Phase = "executing"
)

// Result is what a pass moved.
type Result struct {
	Uploaded   uint64
	Downloaded []uuid.UUID
}

// Syncer runs reconciliation passes. It assumes exclusive use of the store
// and the remote for the duration of a pass; it does not lock either.
type Syncer struct {
	store    Store
	remote   Remote
	pageSize uint64
	progress Progress
	logger   *zap.SugaredLogger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithPageSize sets the number of records per request.
func WithPageSize(n uint64) Option {
	return func(s *Syncer) { s.pageSize = n }
}

// WithProgress installs a progress observer.
func WithProgress(p Progress) Option {
	return func(s *Syncer) { s.progress = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Syncer) { s.logger = l }
}

// New creates a Syncer over a local store and a remote.
func New(store Store, remote Remote, opts ...Option) *Syncer {
	s := &Syncer{
		store:    store,
		remote:   remote,
		pageSize: DefaultPageSize,
		progress: NopProgress{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrNop(s.logger)
	return s
}

// Plan runs the diffing and resolving phases and returns the operations a
// pass would execute, without moving any records.
func (s *Syncer) Plan(ctx context.Context) ([]Operation, error) {
	s.logger.Debugw("Sync phase", logger.FieldPhase, PhaseDiffing)

	remoteStatus, err := s.remote.Status(ctx)
	if err != nil {
		return nil, remoteRequestError(err, "failed to fetch remote status")
	}

	localStatus, err := s.store.Status(ctx)
	if err != nil {
		return nil, localStoreError(err, "failed to read local status")
	}

	diffs := record.Compare(localStatus, remoteStatus)

	s.logger.Debugw("Sync phase",
		logger.FieldPhase, PhaseResolving,
		"local_chains", localStatus.Len(),
		"remote_chains", remoteStatus.Len(),
		"diffs", len(diffs),
	)

	ops, err := Operations(diffs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve sync operations")
	}
	return ops, nil
}

// Sync runs one full pass. Operations execute sequentially in resolver
// order and the first failure aborts the pass. On failure the returned
// Result still holds what earlier operations and pages moved.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	started := time.Now()

	ops, err := s.Plan(ctx)
	if err != nil {
		return Result{}, err
	}

	s.logger.Debugw("Sync phase", logger.FieldPhase, PhaseExecuting, logger.FieldCount, len(ops))

	transfer := NewTransfer(s.store, s.remote, s.pageSize, s.progress, s.logger)

	var result Result
	for _, op := range ops {
		uploaded, downloaded, err := transfer.Apply(ctx, op)
		result.Uploaded += uploaded
		result.Downloaded = append(result.Downloaded, downloaded...)
		if err != nil {
			s.logger.Warnw("Sync operation failed",
				logger.FieldOperation, op.Kind(),
				logger.FieldHostID, op.Key().Host,
				logger.FieldTag, op.Key().Tag,
				logger.FieldError, err,
			)
			return result, errors.Wrapf(err, "%s of %s failed", op.Kind(), op.Key())
		}

		if op.Kind() != KindNoop {
			s.logger.Infow("Sync operation complete",
				logger.FieldOperation, op.Kind(),
				logger.FieldHostID, op.Key().Host,
				logger.FieldTag, op.Key().Tag,
				"uploaded", uploaded,
				"downloaded", len(downloaded),
			)
		}
	}

	s.logger.Infow("Sync pass complete",
		"operations", len(ops),
		"uploaded", result.Uploaded,
		"downloaded", len(result.Downloaded),
		logger.FieldDurationMS, time.Since(started).Milliseconds(),
	)

	return result, nil
}
