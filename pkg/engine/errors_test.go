package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyPluginError(t *testing.T) {
	cancel := CancelError("fx-resource-bot")
	sourced := NewUserError("fx-resource-sql", "SqlLoginFailed", "login failed").WithHint("check the admin password")

	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantSource string
		verbatim   bool
	}{
		{name: "cancellation", err: cancel, wantCode: ErrCodeCancelProvision, wantSource: "fx-resource-bot", verbatim: true},
		{name: "context cancelled", err: context.Canceled, verbatim: true},
		{name: "domain error keeps source", err: sourced, wantCode: "SqlLoginFailed", wantSource: "fx-resource-sql", verbatim: true},
		{name: "domain error gets source", err: NewSystemError("", "Timeout", "timed out"), wantCode: "Timeout", wantSource: "plugin"},
		{name: "unknown error", err: errors.New("boom"), wantCode: ErrCodeUnhandled, wantSource: "plugin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyPluginError("plugin", tt.err)
			if tt.verbatim && got != tt.err {
				t.Fatalf("Expected error returned verbatim, got: %v", got)
			}
			if tt.wantCode == "" {
				return
			}
			var fe *FxError
			if !errors.As(got, &fe) {
				t.Fatalf("Expected *FxError, got %T", got)
			}
			if fe.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, fe.Code)
			}
			if fe.Source != tt.wantSource {
				t.Errorf("Expected source %s, got %s", tt.wantSource, fe.Source)
			}
		})
	}
}

func TestClassifyPluginError_PreservesMessage(t *testing.T) {
	got := ClassifyPluginError("fx-resource-function", errors.New("npm install exited with 1"))
	if !strings.Contains(got.Error(), "npm install exited with 1") {
		t.Errorf("Expected original message preserved, got: %v", got)
	}
	if !IsSystemError(got) {
		t.Error("Expected a system error")
	}
}

func TestFxError_IsMatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ResourceAlreadyAddedError("fx-resource-sql", 0))
	if !errors.Is(err, ErrResourceAlreadyAdded) {
		t.Error("Expected wrapped error to match ErrResourceAlreadyAdded")
	}
	if errors.Is(err, ErrTemplateConflict) {
		t.Error("Expected no match with a different code")
	}
	if Code(err) != ErrCodeResourceAlreadyAdded {
		t.Errorf("Expected code %s, got %s", ErrCodeResourceAlreadyAdded, Code(err))
	}
	if Code(errors.New("plain")) != ErrCodeUnhandled {
		t.Error("Expected unclassified errors to report UnhandledError")
	}
}

func TestFxError_Message(t *testing.T) {
	err := UnhandledError("fx-resource-bot", errors.New("disk full"))
	if got := err.Error(); got != "[fx-resource-bot.UnhandledError] disk full" {
		t.Errorf("Unexpected message: %q", got)
	}

	err = InvalidInputError("resource is required").WithSource("").WithCause(errors.New("empty"))
	if got := err.Error(); got != "[InvalidInput] invalid input: resource is required: empty" {
		t.Errorf("Unexpected message: %q", got)
	}
}
