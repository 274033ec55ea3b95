package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestVerdictString(t *testing.T) {
	tests := map[Verdict]string{
		Found:       "found",
		NotFound:    "not_found",
		Unknown:     "unknown",
		Verdict(42): "unknown",
	}
	for v, want := range tests {
		if got := v.String(); got != want {
			t.Errorf("Verdict(%d).String() = %q, expected %q", int(v), got, want)
		}
	}
}

func TestResultExists(t *testing.T) {
	if !(Result{Verdict: Found}).Exists() {
		t.Error("Found should exist")
	}
	if (Result{Verdict: NotFound}).Exists() || (Result{Verdict: Unknown}).Exists() {
		t.Error("Only Found should exist")
	}
}

func TestCheckErrorWrapping(t *testing.T) {
	cause := &StatusError{Code: 503, Body: "busy"}
	err := fmt.Errorf("check: %w", NewCheckError(ErrKindHTTPStatus, "send request", cause))

	if kind := KindOf(err); kind != ErrKindHTTPStatus {
		t.Errorf("Expected %s, got %s", ErrKindHTTPStatus, kind)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 503 {
		t.Errorf("Expected wrapped StatusError, got %v", err)
	}
	want := "check: [http_status] send request: server returned status 503: busy"
	if err.Error() != want {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if kind := KindOf(errors.New("plain")); kind != ErrKindTransport {
		t.Errorf("Expected %s for unclassified error, got %s", ErrKindTransport, kind)
	}
}
