// Package record defines the data model shared by every side of a sync:
// host identity, chain keys, records and per-chain status summaries.
package record

import (
	"bytes"
	"cmp"

	"github.com/google/uuid"
)

// HostID identifies one installation. It is generated once and never changes.
type HostID struct {
	uuid.UUID
}

// NewHostID returns a fresh random host identity.
func NewHostID() HostID {
	return HostID{UUID: uuid.New()}
}

// ParseHostID parses the canonical uuid form of a host id.
func ParseHostID(s string) (HostID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return HostID{}, err
	}
	return HostID{UUID: u}, nil
}

// Compare orders host ids by their raw bytes.
func (h HostID) Compare(other HostID) int {
	return bytes.Compare(h.UUID[:], other.UUID[:])
}

// Idx is the number of records in a chain. A record's own Idx is its
// zero-based position, so a chain with status n holds records 0..n-1.
type Idx = uint64

// Key identifies one chain: the append-only stream a host owns for a tag.
type Key struct {
	Host HostID
	Tag  string
}

// Compare orders keys by host, then tag.
func (k Key) Compare(other Key) int {
	if c := k.Host.Compare(other.Host); c != 0 {
		return c
	}
	return cmp.Compare(k.Tag, other.Tag)
}

func (k Key) String() string {
	return k.Host.String() + "/" + k.Tag
}

// Record is one entry of a chain. Data is opaque to sync: it is already
// encrypted by the time it reaches the store.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Host      HostID    `json:"host"`
	Tag       string    `json:"tag"`
	Idx       Idx       `json:"idx"`
	Timestamp int64     `json:"timestamp"` // unix nanoseconds
	Version   string    `json:"version"`
	Data      []byte    `json:"data"`
}

// Key returns the chain the record belongs to.
func (r Record) Key() Key {
	return Key{Host: r.Host, Tag: r.Tag}
}

// IDs returns the record ids in order.
func IDs(records []Record) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
