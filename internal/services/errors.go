// Package services defines the business logic for the conversation
// lifecycle, the collected-data projection, failure tracking, dashboard
// metrics, and listings. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrConversationNotFound indicates that the requested conversation
	// does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConflict is returned when a lifecycle transition found the
	// conversation in a different status than expected. It is a benign
	// outcome of concurrent writers, not a failure: the caller re-reads
	// current state and decides whether its transition still applies.
	ErrConflict = errors.New("conversation status changed concurrently")

	// ErrTerminalStatus is returned when an operation requires an active
	// conversation but the conversation has already reached completed,
	// abandoned, or error.
	ErrTerminalStatus = errors.New("conversation is in a terminal status")

	// ErrIncompleteData is returned when a provisioning attempt is
	// requested before the collected data passes the completeness check.
	ErrIncompleteData = errors.New("collected data incomplete")

	// ErrNotConfirmed is returned when a provisioning attempt is requested
	// before the user confirmed the collected data.
	ErrNotConfirmed = errors.New("collected data not confirmed")

	// ErrEmptyContent is returned when a message with no content is
	// submitted.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrInvalidRole is returned when a message carries a role outside
	// user/assistant/system.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrInvalidRating is returned when a feedback rating is outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrInvalidWindow is returned when a metrics window has end before
	// start.
	ErrInvalidWindow = errors.New("end date precedes start date")
)
