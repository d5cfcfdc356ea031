package moderation

import "errors"

var (
	// ErrMalformedEvent is returned for a body that is not a JSON object. It is terminal.
	ErrMalformedEvent = errors.New("moderation: malformed event")

	// ErrUnroutableEvent marks events acknowledged without processing.
	ErrUnroutableEvent = errors.New("moderation: unroutable event")

	ErrClassificationFailure = errors.New("moderation: classification failure")
	ErrStoreOperation        = errors.New("moderation: store operation failed")
	ErrReferenceSync         = errors.New("moderation: reference sync failed")
	ErrLockHeld              = errors.New("moderation: object is being processed")
	ErrNotConfigured         = errors.New("moderation: pipeline not configured")
)
