package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrInvalidInput - the inbound request is missing required fields
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - turn, round or tool call not found in the history tree
	ErrNotFound = errors.New("not found")

	// ErrConflict - a decision raced with another resolver for the same call
	ErrConflict = errors.New("conflict")

	// ErrDuplicateRequest - a request id was already processed (replay)
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrPersistence - a rule or journal write failed; in-memory state was
	// left untouched
	ErrPersistence = errors.New("persistence failure")
)
