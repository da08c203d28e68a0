package sync

// Progress observes transfers. Implementations render it (a terminal bar,
// a log line); the sync core only reports counts.
type Progress interface {
	// Start is called before the first page of an Upload or Download.
	Start(op Operation, total uint64)
	// Advance is called after every page with the cumulative count.
	Advance(op Operation, done, total uint64)
	// Finish is called once the operation has moved all expected records.
	Finish(op Operation, done uint64)
}

// NopProgress discards progress updates.
type NopProgress struct{}

func (NopProgress) Start(Operation, uint64)           {}
func (NopProgress) Advance(Operation, uint64, uint64) {}
func (NopProgress) Finish(Operation, uint64)          {}
