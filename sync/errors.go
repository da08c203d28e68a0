package sync

import (
	"github.com/teranos/histsync/errors"
)

// Error kinds. Every failure leaving this package is marked with exactly one
// of these, so callers can branch with errors.Is regardless of wrapping.
var (
	// ErrLocalAheadOtherHost means the local store claims more records for a
	// chain than its owning host has published. Reserved: nothing raises it yet.
	ErrLocalAheadOtherHost = errors.New("local store is ahead of the owning host")

	// ErrLocalStore wraps any failure reading or writing the local store.
	ErrLocalStore = errors.New("local store error")

	// ErrSyncLogic marks a broken internal assumption, such as a diff with
	// neither side present or a page that makes no progress.
	ErrSyncLogic = errors.New("sync logic error")

	// ErrOperational marks failures building the sync machinery from
	// configuration, e.g. a malformed server address.
	ErrOperational = errors.New("operational error")

	// ErrRemoteRequest wraps any failure talking to the sync server.
	ErrRemoteRequest = errors.New("remote request error")
)

func localStoreError(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrLocalStore)
}

func remoteRequestError(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrRemoteRequest)
}

func logicError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrSyncLogic)
}

// LocalStoreError marks err as an ErrLocalStore failure with context.
func LocalStoreError(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrLocalStore)
}

// OperationalError marks err as an ErrOperational failure with context.
func OperationalError(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrOperational)
}
