package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/histsync/internal/util"
	"github.com/teranos/histsync/record"
)

// memLog is an in-memory set of chains shared by the store and remote fakes.
type memLog struct {
	chains map[record.Key][]record.Record

	// overstate inflates the advertised count of every chain, to model a
	// status that promises records it cannot serve.
	overstate record.Idx

	nextCalls int
	pushCalls int
}

func newMemLog() *memLog {
	return &memLog{chains: make(map[record.Key][]record.Record)}
}

// appendN adds n records to the end of a chain.
func (m *memLog) appendN(host record.HostID, tag string, n int) {
	key := record.Key{Host: host, Tag: tag}
	for i := 0; i < n; i++ {
		idx := record.Idx(len(m.chains[key]))
		m.chains[key] = append(m.chains[key], record.Record{
			ID:        uuid.New(),
			Host:      host,
			Tag:       tag,
			Idx:       idx,
			Timestamp: int64(idx),
			Version:   "v0",
			Data:      []byte(fmt.Sprintf("%s-%d", tag, idx)),
		})
	}
}

func (m *memLog) status() record.Status {
	s := record.NewStatus()
	for key, chain := range m.chains {
		s.Set(key.Host, key.Tag, record.Idx(len(chain))+m.overstate)
	}
	return s
}

func (m *memLog) next(host record.HostID, tag string, from record.Idx, limit uint64) []record.Record {
	m.nextCalls++
	chain := m.chains[record.Key{Host: host, Tag: tag}]
	if from >= record.Idx(len(chain)) {
		return nil
	}
	end := min(from+limit, record.Idx(len(chain)))
	return append([]record.Record(nil), chain[from:end]...)
}

func (m *memLog) push(records []record.Record) error {
	m.pushCalls++
	for _, r := range records {
		key := r.Key()
		have := record.Idx(len(m.chains[key]))
		switch {
		case r.Idx < have:
			continue
		case r.Idx > have:
			return fmt.Errorf("gap in %s: have %d records, got index %d", key, have, r.Idx)
		}
		m.chains[key] = append(m.chains[key], r)
	}
	return nil
}

type memStore struct {
	*memLog
	statusErr error
	nextErr   error
	pushErr   error
}

func newMemStore() *memStore {
	return &memStore{memLog: newMemLog()}
}

func (s *memStore) Status(ctx context.Context) (record.Status, error) {
	if s.statusErr != nil {
		return record.Status{}, s.statusErr
	}
	return s.status(), nil
}

func (s *memStore) Next(ctx context.Context, host record.HostID, tag string, from record.Idx, limit uint64) ([]record.Record, error) {
	if s.nextErr != nil {
		return nil, s.nextErr
	}
	return s.next(host, tag, from, limit), nil
}

func (s *memStore) PushBatch(ctx context.Context, records []record.Record) error {
	if s.pushErr != nil {
		return s.pushErr
	}
	return s.push(records)
}

type memRemote struct {
	*memLog
	statusErr error
	nextErr   error
	postErr   error

	// failPostAfter makes every post after the first n fail with postErr.
	failPostAfter int
}

func newMemRemote() *memRemote {
	return &memRemote{memLog: newMemLog(), failPostAfter: -1}
}

func (r *memRemote) Status(ctx context.Context) (record.Status, error) {
	if r.statusErr != nil {
		return record.Status{}, r.statusErr
	}
	return r.status(), nil
}

func (r *memRemote) PostRecords(ctx context.Context, records []record.Record) error {
	if r.postErr != nil && r.pushCalls >= r.failPostAfter {
		return r.postErr
	}
	return r.push(records)
}

func (r *memRemote) NextRecords(ctx context.Context, host record.HostID, tag string, from record.Idx, limit uint64) ([]record.Record, error) {
	if r.nextErr != nil {
		return nil, r.nextErr
	}
	return r.next(host, tag, from, limit), nil
}

// progressLog records every progress callback.
type progressLog struct {
	starts   []uint64
	advances [][2]uint64
	finishes []uint64
}

func (p *progressLog) Start(op Operation, total uint64) { p.starts = append(p.starts, total) }
func (p *progressLog) Advance(op Operation, done, total uint64) {
	p.advances = append(p.advances, [2]uint64{done, total})
}
func (p *progressLog) Finish(op Operation, done uint64) { p.finishes = append(p.finishes, done) }

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	l, _ := zap.NewDevelopment()
	return l.Sugar()
}

func hostID(b byte) record.HostID {
	var u uuid.UUID
	u[15] = b
	return record.HostID{UUID: u}
}

func idx(i record.Idx) *record.Idx {
	return util.Ptr(i)
}
