package rtos

import "errors"

var (
	// ErrSymbolNotFound means a required kernel global could not be
	// resolved; detection fails for this pause and is retried on the next.
	ErrSymbolNotFound = errors.New("kernel symbol not found")

	// ErrTargetRunning means a read was attempted while the target is
	// executing. Aborts the current list traversal only.
	ErrTargetRunning = errors.New("target is running")

	// ErrReadUnavailable means a single variable or memory read failed.
	// Degrades one optional field, never the whole pass.
	ErrReadUnavailable = errors.New("read unavailable")
)
