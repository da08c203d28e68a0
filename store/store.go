// Package store is the SQLite-backed record log used on both sides of a
// sync: the client's local history and the server's copy of every host.
package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/logger"
	"github.com/teranos/histsync/record"
)

// ErrChainGap is returned when a pushed record would leave a hole in its chain.
var ErrChainGap = errors.New("record does not extend its chain")

// ErrChainConflict is returned when a different record already occupies a position.
var ErrChainConflict = errors.New("chain position already taken by another record")

// Store persists records in the records table created by db migrations.
type Store struct {
	db    *sql.DB
	clock clockwork.Clock
	log   *zap.SugaredLogger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to timestamp appended records.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the store logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Store) { s.log = l }
}

// New wraps an open, migrated database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:    db,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrNop(s.log).With(logger.FieldComponent, "store")
	return s
}

// Status returns the record count of every chain in the store.
func (s *Store) Status(ctx context.Context) (record.Status, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT host, tag, MAX(idx) + 1 FROM records GROUP BY host, tag`)
	if err != nil {
		return record.Status{}, wrapf(err, "failed to query chain status")
	}
	defer rows.Close()

	status := record.NewStatus()
	for rows.Next() {
		var (
			hostStr string
			tag     string
			count   int64
		)
		if err := rows.Scan(&hostStr, &tag, &count); err != nil {
			return record.Status{}, errors.Wrap(err, "failed to scan chain status")
		}
		host, err := record.ParseHostID(hostStr)
		if err != nil {
			return record.Status{}, errors.Wrapf(err, "stored host id %q is invalid", hostStr)
		}
		status.Set(host, tag, record.Idx(count))
	}
	if err := rows.Err(); err != nil {
		return record.Status{}, errors.Wrap(err, "failed to iterate chain status")
	}
	return status, nil
}

// Next returns up to limit records of the (host, tag) chain starting at from,
// in index order.
func (s *Store) Next(ctx context.Context, host record.HostID, tag string, from record.Idx, limit uint64) ([]record.Record, error) {
	if limit == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, idx, timestamp, version, data FROM records
		 WHERE host = ? AND tag = ? AND idx >= ?
		 ORDER BY idx
		 LIMIT ?`,
		host.String(), tag, int64(from), int64(limit))
	if err != nil {
		return nil, wrapf(err, "failed to query records of %s/%s", host, tag)
	}
	defer rows.Close()

	var records []record.Record
	for rows.Next() {
		var (
			idStr string
			idx   int64
			rec   = record.Record{Host: host, Tag: tag}
		)
		if err := rows.Scan(&idStr, &idx, &rec.Timestamp, &rec.Version, &rec.Data); err != nil {
			return nil, errors.Wrap(err, "failed to scan record")
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, errors.Wrapf(err, "stored record id %q is invalid", idStr)
		}
		rec.ID = id
		rec.Idx = record.Idx(idx)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate records")
	}
	return records, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// load returns one record by id.
func load(ctx context.Context, q queryer, id uuid.UUID) (record.Record, error) {
	var (
		hostStr string
		idx     int64
		rec     = record.Record{ID: id}
	)
	err := q.QueryRowContext(ctx,
		`SELECT host, tag, idx, timestamp, version, data FROM records WHERE id = ?`,
		id.String()).Scan(&hostStr, &rec.Tag, &idx, &rec.Timestamp, &rec.Version, &rec.Data)
	if err == sql.ErrNoRows {
		return record.Record{}, errors.Mark(errors.Newf("record %s not found", id), errors.ErrNotFound)
	}
	if err != nil {
		return record.Record{}, errors.Wrapf(err, "failed to load record %s", id)
	}
	host, err := record.ParseHostID(hostStr)
	if err != nil {
		return record.Record{}, errors.Wrapf(err, "stored host id %q is invalid", hostStr)
	}
	rec.Host = host
	rec.Idx = record.Idx(idx)
	return rec, nil
}

// PushBatch stores records in one transaction. Records already present at
// the same position are skipped. A record that would leave a gap in its chain, or that collides
// with a different record at the same position, aborts the whole batch.
func (s *Store) PushBatch(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapf(err, "failed to begin push transaction")
	}
	defer tx.Rollback()

	next := make(map[record.Key]record.Idx)
	inserted := 0
	for _, rec := range records {
		key := rec.Key()
		end, ok := next[key]
		if !ok {
			end, err = chainLength(ctx, tx, key)
			if err != nil {
				return err
			}
		}
		if rec.Idx > end {
			return errors.Mark(
				errors.Newf("record %s at %s[%d] would leave a gap after %d records", rec.ID, key, rec.Idx, end),
				ErrChainGap)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO records (id, host, tag, idx, timestamp, version, data)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`,
			rec.ID.String(), rec.Host.String(), rec.Tag, int64(rec.Idx), rec.Timestamp, rec.Version, rec.Data)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.Mark(
					errors.Wrapf(err, "record %s collides at %s[%d]", rec.ID, key, rec.Idx),
					ErrChainConflict)
			}
			return errors.Wrapf(err, "failed to insert record %s", rec.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrapf(err, "failed to insert record %s", rec.ID)
		}
		if n > 0 {
			inserted++
		} else {
			// id already stored: only an exact replay of its position is accepted
			stored, err := load(ctx, tx, rec.ID)
			if err != nil {
				return err
			}
			if stored.Key() != key || stored.Idx != rec.Idx {
				return errors.Mark(
					errors.Newf("record %s is stored at %s[%d], not %s[%d]", rec.ID, stored.Key(), stored.Idx, key, rec.Idx),
					ErrChainConflict)
			}
		}
		if rec.Idx+1 > end {
			end = rec.Idx + 1
		}
		next[key] = end
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit push transaction")
	}
	s.log.Debugw("Pushed records",
		logger.FieldCount, len(records),
		"inserted", inserted,
	)
	return nil
}

// Append adds a new record to the end of this host's chain for tag.
func (s *Store) Append(ctx context.Context, host record.HostID, tag, version string, data []byte) (record.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return record.Record{}, wrapf(err, "failed to begin append transaction")
	}
	defer tx.Rollback()

	key := record.Key{Host: host, Tag: tag}
	idx, err := chainLength(ctx, tx, key)
	if err != nil {
		return record.Record{}, err
	}

	rec := record.Record{
		ID:        uuid.New(),
		Host:      host,
		Tag:       tag,
		Idx:       idx,
		Timestamp: s.clock.Now().UnixNano(),
		Version:   version,
		Data:      data,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records (id, host, tag, idx, timestamp, version, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), host.String(), tag, int64(idx), rec.Timestamp, version, data); err != nil {
		return record.Record{}, errors.Wrapf(err, "failed to append to %s", key)
	}
	if err := tx.Commit(); err != nil {
		return record.Record{}, errors.Wrap(err, "failed to commit append")
	}

	s.log.Debugw("Appended record",
		logger.FieldHostID, host.String(),
		logger.FieldTag, tag,
		logger.FieldLocalIdx, idx,
	)
	return rec, nil
}

func chainLength(ctx context.Context, tx *sql.Tx, key record.Key) (record.Idx, error) {
	var n int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(idx) + 1, 0) FROM records WHERE host = ? AND tag = ?`,
		key.Host.String(), key.Tag).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read length of %s", key)
	}
	return record.Idx(n), nil
}
