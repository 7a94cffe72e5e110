package domain

import "testing"

func TestValidStatus(t *testing.T) {
	for _, s := range Statuses {
		if !ValidStatus(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	for _, s := range []string{"", "ACTIVE", "pending", "done"} {
		if ValidStatus(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(StatusActive) {
		t.Fatal("active must not be terminal")
	}
	for _, s := range []string{StatusCompleted, StatusAbandoned, StatusError} {
		if !IsTerminal(s) {
			t.Fatalf("expected %q to be terminal", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	// Only active has outgoing edges; self-transition on active is allowed.
	for _, to := range Statuses {
		if !CanTransition(StatusActive, to) {
			t.Fatalf("active -> %s should be allowed", to)
		}
	}
	for _, from := range []string{StatusCompleted, StatusAbandoned, StatusError} {
		for _, to := range Statuses {
			if CanTransition(from, to) {
				t.Fatalf("%s -> %s should be rejected", from, to)
			}
		}
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleUser, RoleAssistant, RoleSystem} {
		if !ValidRole(r) {
			t.Fatalf("expected role %q to be valid", r)
		}
	}
	if ValidRole("bot") || ValidRole("") {
		t.Fatal("unknown roles must be invalid")
	}
}

func TestRetryableError(t *testing.T) {
	retryable := []string{ErrTypeSporttiaAPI, ErrTypeOpenAIAPI, ErrTypeEmailFailed, ErrTypeValidation}
	for _, e := range retryable {
		if !RetryableError(e) {
			t.Fatalf("expected %q to be retryable", e)
		}
	}
	if RetryableError(ErrTypeInternal) {
		t.Fatal("internal_error must not be retryable")
	}
	if RetryableError("unknown") {
		t.Fatal("unknown types must not be retryable")
	}
}

func TestValidErrorType(t *testing.T) {
	for _, e := range ErrorTypes {
		if !ValidErrorType(e) {
			t.Fatalf("expected %q to be valid", e)
		}
	}
	if ValidErrorType("timeout") {
		t.Fatal("unexpected valid type")
	}
}
