package storage

import "errors"

var (
	// ErrBusy is returned when a collection's lock could not be acquired
	// within LOCK_TIMEOUT.
	ErrBusy = errors.New("storage busy: lock acquisition timed out")

	// ErrIO is returned when a write fails after the temp file was created;
	// the temp file is removed before this is surfaced.
	ErrIO = errors.New("storage io error")
)
