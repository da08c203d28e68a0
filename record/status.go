package record

import (
	"slices"

	"github.com/teranos/histsync/internal/util"
)

// Status is a snapshot of the record count of every chain one side knows.
type Status struct {
	Hosts map[HostID]map[string]Idx `json:"hosts"`
}

// NewStatus returns an empty status summary.
func NewStatus() Status {
	return Status{Hosts: make(map[HostID]map[string]Idx)}
}

// Set records the count for a chain, replacing any previous value.
func (s *Status) Set(host HostID, tag string, idx Idx) {
	if s.Hosts == nil {
		s.Hosts = make(map[HostID]map[string]Idx)
	}
	tags, ok := s.Hosts[host]
	if !ok {
		tags = make(map[string]Idx)
		s.Hosts[host] = tags
	}
	tags[tag] = idx
}

// Get returns the count for a chain and whether the chain is known at all.
func (s Status) Get(host HostID, tag string) (Idx, bool) {
	tags, ok := s.Hosts[host]
	if !ok {
		return 0, false
	}
	idx, ok := tags[tag]
	return idx, ok
}

// Keys returns every known chain in Key order.
func (s Status) Keys() []Key {
	keys := make([]Key, 0, s.Len())
	for host, tags := range s.Hosts {
		for tag := range tags {
			keys = append(keys, Key{Host: host, Tag: tag})
		}
	}
	slices.SortFunc(keys, Key.Compare)
	return keys
}

// Len returns the number of known chains.
func (s Status) Len() int {
	n := 0
	for _, tags := range s.Hosts {
		n += len(tags)
	}
	return n
}

// Diff is the comparison of one chain across the two sides. A nil side has
// never heard of the chain.
type Diff struct {
	Host   HostID
	Tag    string
	Local  *Idx
	Remote *Idx
}

// Key returns the chain the diff is about.
func (d Diff) Key() Key {
	return Key{Host: d.Host, Tag: d.Tag}
}

// Compare diffs two status summaries over the union of their chains.
// Chains whose counts agree are omitted. The result is sorted by Key so it
// is stable regardless of map iteration order.
func Compare(local, remote Status) []Diff {
	var diffs []Diff

	for _, key := range local.Keys() {
		l, _ := local.Get(key.Host, key.Tag)
		r, ok := remote.Get(key.Host, key.Tag)
		switch {
		case !ok:
			diffs = append(diffs, Diff{Host: key.Host, Tag: key.Tag, Local: util.Ptr(l)})
		case l != r:
			diffs = append(diffs, Diff{Host: key.Host, Tag: key.Tag, Local: util.Ptr(l), Remote: util.Ptr(r)})
		}
	}

	for _, key := range remote.Keys() {
		if _, ok := local.Get(key.Host, key.Tag); ok {
			continue
		}
		r, _ := remote.Get(key.Host, key.Tag)
		diffs = append(diffs, Diff{Host: key.Host, Tag: key.Tag, Remote: util.Ptr(r)})
	}

	slices.SortFunc(diffs, func(a, b Diff) int { return a.Key().Compare(b.Key()) })
	return diffs
}
