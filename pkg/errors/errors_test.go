package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := Wrap(ErrCodeConnectionFailed, "dial public", stderrors.New("refused"))
	want := "[1100] dial public: refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	if New(ErrCodeTimeout, "slow").Error() != "[1105] slow" {
		t.Errorf("unexpected format: %q", New(ErrCodeTimeout, "slow").Error())
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("emit: %w", NewNotConnectedError("auth", "sendChatMessage"))

	if !IsCode(err, ErrCodeNotConnected) {
		t.Error("expected wrapped error to carry ErrCodeNotConnected")
	}
	if IsCode(err, ErrCodeTimeout) {
		t.Error("unexpected ErrCodeTimeout match")
	}
	if !stderrors.Is(err, ErrNotConnected) {
		t.Error("expected errors.Is to match sentinel by code")
	}
	if Code(err) != ErrCodeNotConnected {
		t.Errorf("Code() = %d", Code(err))
	}
	if Code(stderrors.New("plain")) != ErrCodeUnknown {
		t.Error("plain errors should map to ErrCodeUnknown")
	}
	if IsCode(nil, ErrCodeNotConnected) {
		t.Error("nil must not match")
	}
}
