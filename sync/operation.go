package sync

import (
	"cmp"
	"slices"

	"github.com/teranos/histsync/internal/util"
	"github.com/teranos/histsync/record"
)

// Kind names the variant of an Operation. The numeric value is the sort rank.
type Kind int

const (
	KindNoop Kind = iota
	KindUpload
	KindDownload
)

func (k Kind) String() string {
	switch k {
	case KindNoop:
		return "noop"
	case KindUpload:
		return "upload"
	case KindDownload:
		return "download"
	default:
		return "unknown"
	}
}

// Operation is the action needed to reconcile one chain. The set is closed:
// Upload, Download and Noop are the only implementations.
type Operation interface {
	Key() record.Key
	Kind() Kind
	isOperation()
}

// Upload moves records the remote is missing. Remote is nil when the server
// has never seen the chain.
type Upload struct {
	Host   record.HostID
	Tag    string
	Local  record.Idx
	Remote *record.Idx
}

// Download moves records the local store is missing. Local is nil when this
// host has never seen the chain.
type Download struct {
	Host   record.HostID
	Tag    string
	Local  *record.Idx
	Remote record.Idx
}

// Noop means both sides agree on the chain.
type Noop struct {
	Host record.HostID
	Tag  string
}

func (o Upload) Key() record.Key   { return record.Key{Host: o.Host, Tag: o.Tag} }
func (o Download) Key() record.Key { return record.Key{Host: o.Host, Tag: o.Tag} }
func (o Noop) Key() record.Key     { return record.Key{Host: o.Host, Tag: o.Tag} }

func (Upload) Kind() Kind   { return KindUpload }
func (Download) Kind() Kind { return KindDownload }
func (Noop) Kind() Kind     { return KindNoop }

func (Upload) isOperation()   {}
func (Download) isOperation() {}
func (Noop) isOperation()     {}

// Operations resolves diffs into the operations that reconcile them.
//
// The result is sorted by (kind, host, tag) with Noop before Upload before
// Download, so equivalent input in any order yields identical output. A
// diff with neither side present fails the whole resolution.
func Operations(diffs []record.Diff) ([]Operation, error) {
	ops := make([]Operation, 0, len(diffs))
	for _, d := range diffs {
		op, err := resolve(d)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	slices.SortFunc(ops, compareOperations)
	return ops, nil
}

func resolve(d record.Diff) (Operation, error) {
	switch {
	case d.Local != nil && d.Remote != nil:
		local, remote := *d.Local, *d.Remote
		switch {
		case local == remote:
			return Noop{Host: d.Host, Tag: d.Tag}, nil
		case local > remote:
			return Upload{Host: d.Host, Tag: d.Tag, Local: local, Remote: util.Ptr(remote)}, nil
		default:
			return Download{Host: d.Host, Tag: d.Tag, Local: util.Ptr(local), Remote: remote}, nil
		}
	case d.Remote != nil:
		return Download{Host: d.Host, Tag: d.Tag, Remote: *d.Remote}, nil
	case d.Local != nil:
		return Upload{Host: d.Host, Tag: d.Tag, Local: *d.Local}, nil
	default:
		return nil, logicError("diff for chain %s has neither a local nor a remote index", d.Key())
	}
}

func compareOperations(a, b Operation) int {
	if c := cmp.Compare(a.Kind(), b.Kind()); c != 0 {
		return c
	}
	if c := a.Key().Compare(b.Key()); c != 0 {
		return c
	}
	// Only reachable with duplicate chains in the input; order by indices
	// so the output stays a function of the input multiset.
	al, ar := indices(a)
	bl, br := indices(b)
	if c := compareOptional(al, bl); c != 0 {
		return c
	}
	return compareOptional(ar, br)
}

func indices(op Operation) (local, remote *record.Idx) {
	switch op := op.(type) {
	case Upload:
		return &op.Local, op.Remote
	case Download:
		return op.Local, &op.Remote
	default:
		return nil, nil
	}
}

func compareOptional(a, b *record.Idx) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return cmp.Compare(*a, *b)
	}
}
