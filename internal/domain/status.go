// Package domain defines the core persistence models for the application.
// This file holds the conversation lifecycle status vocabulary and the
// transition graph, plus the closed error-type taxonomy used by the failure
// ledger.
package domain

// Conversation lifecycle statuses. Active is the sole initial state; the
// other three are terminal and absorb all further events.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAbandoned = "abandoned"
	StatusError     = "error"
)

// Statuses lists every valid conversation status, used by the query layer to
// validate filters.
var Statuses = []string{StatusActive, StatusCompleted, StatusAbandoned, StatusError}

// ValidStatus reports whether s is a known conversation status.
func ValidStatus(s string) bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a conversation in status s accepts no further
// automatic transitions.
func IsTerminal(s string) bool {
	return s == StatusCompleted || s == StatusAbandoned || s == StatusError
}

// CanTransition reports whether the lifecycle graph contains an edge from
// one status to another. Self-transitions are permitted only on active
// (ordinary information-gathering turns and sub-ceiling failures).
func CanTransition(from, to string) bool {
	if from != StatusActive {
		return false
	}
	switch to {
	case StatusActive, StatusCompleted, StatusAbandoned, StatusError:
		return true
	}
	return false
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ValidRole reports whether r is a known message role.
func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Error types form a closed taxonomy; every recorded failure is classified
// into exactly one of these.
const (
	ErrTypeSporttiaAPI = "sporttia_api_error"
	ErrTypeOpenAIAPI   = "openai_api_error"
	ErrTypeEmailFailed = "email_failed"
	ErrTypeValidation  = "validation_error"
	ErrTypeInternal    = "internal_error"
)

// ErrorTypes lists the closed error taxonomy, used by the query layer to
// validate filters.
var ErrorTypes = []string{
	ErrTypeSporttiaAPI,
	ErrTypeOpenAIAPI,
	ErrTypeEmailFailed,
	ErrTypeValidation,
	ErrTypeInternal,
}

// ValidErrorType reports whether t is part of the closed taxonomy.
func ValidErrorType(t string) bool {
	for _, v := range ErrorTypes {
		if t == v {
			return true
		}
	}
	return false
}

// RetryableError reports whether failures of type t may be retried below the
// configured ceiling. Internal errors are non-retryable and escalate the
// owning conversation immediately.
func RetryableError(t string) bool {
	switch t {
	case ErrTypeSporttiaAPI, ErrTypeOpenAIAPI, ErrTypeEmailFailed, ErrTypeValidation:
		return true
	}
	return false
}
