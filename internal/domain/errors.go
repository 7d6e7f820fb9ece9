package domain

import "errors"

// Failure kinds of the store resolution engine. None of them is fatal;
// each one has a defined degraded continuation.
var (
	ErrPositionUnavailable   = errors.New("position unavailable")
	ErrDirectorySearchFailed = errors.New("directory search failed")
	ErrDirectorySearchEmpty  = errors.New("directory search returned no candidates")
	ErrEnrichmentItemFailed  = errors.New("candidate enrichment failed")
	ErrNoCandidatesInRadius  = errors.New("no candidates within radius")
	ErrCycleSuperseded       = errors.New("query cycle superseded")

	ErrInvalidPosition = errors.New("invalid position")
	ErrUnknownStore    = errors.New("unknown store")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
)
