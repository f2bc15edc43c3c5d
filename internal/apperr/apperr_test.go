package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	err := New(CodeSessionFull, "session is full")
	if got := CodeOf(err); got != CodeSessionFull {
		t.Errorf("CodeOf = %s, want %s", got, CodeSessionFull)
	}

	wrapped := fmt.Errorf("handling join: %w", err)
	if got := CodeOf(wrapped); got != CodeSessionFull {
		t.Errorf("CodeOf wrapped = %s, want %s", got, CodeSessionFull)
	}

	if got := CodeOf(errors.New("plain")); got != CodeUnknown {
		t.Errorf("CodeOf plain = %s, want %s", got, CodeUnknown)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeUnknown, "store failure", cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped error should match its cause with errors.Is")
	}
	if got := CodeOf(err); got != CodeUnknown {
		t.Errorf("CodeOf = %s, want %s", got, CodeUnknown)
	}
}
