package sentinel

import "errors"

// Sentinel errors for infrastructure facts. The ticket store, offline queue,
// and fanout bridge return these (optionally wrapped) so callers can branch
// on factual states without string matching:
// - ErrNotFound: key or entity does not exist in the store
// - ErrExpired: ticket or queue entry passed its TTL
// - ErrAlreadyUsed: single-use credential already consumed
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: broker or store temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
