package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := New(ErrCategoryRemote, CodeNotFound, "no membership data")
	expected := "[REMOTE:NOT_FOUND] no membership data"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryRemote, CodeTransport, "GetMembership failed", cause)
	expected := "[REMOTE:TRANSPORT] GetMembership failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryEngine, CodeInitFailed, "init", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestError_Is(t *testing.T) {
	err1 := New(ErrCategoryEngine, CodeConnectionLost, "first")
	err2 := New(ErrCategoryEngine, CodeConnectionLost, "second")
	err3 := New(ErrCategoryEngine, CodeInitFailed, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryEngine, CodeConnectionLost, true},
		{ErrCategoryEngine, CodeInitFailed, false},
		{ErrCategoryRemote, CodeTransport, true},
		{ErrCategoryRemote, CodeNotFound, false},
		{ErrCategoryQuery, CodeQueryFailed, false},
		{ErrCategoryValidation, CodeInvalidEntity, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := NewQueryError("bad sql", nil)
	if GetCategory(err) != ErrCategoryQuery {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryQuery)
	}
	if GetCode(err) != CodeQueryFailed {
		t.Errorf("got %q, want %q", GetCode(err), CodeQueryFailed)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("plain error should return empty category")
	}
	wrapped := fmt.Errorf("context: %w", NewYearAvailabilityError("2024-2025", nil, nil))
	if GetCategory(wrapped) != ErrCategoryAvailability || GetCode(wrapped) != CodeYearUnavailable {
		t.Errorf("year error classified as %s/%s", GetCategory(wrapped), GetCode(wrapped))
	}
}

func TestYearAvailabilityError(t *testing.T) {
	available := []string{"2023-2024", "2022-2023"}
	cause := fmt.Errorf("No files found that match the pattern")
	err := NewYearAvailabilityError("2024-2025", available, cause)
	available[0] = "mutated"

	wrapped := fmt.Errorf("summary: %w", err)
	ye, ok := AsYearUnavailable(wrapped)
	if !ok {
		t.Fatal("expected AsYearUnavailable to match")
	}
	if ye.RequestedYear != "2024-2025" || ye.AvailableYears[0] != "2023-2024" {
		t.Errorf("unexpected contents %+v", ye)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("cause should be reachable")
	}
	if !errors.Is(wrapped, New(ErrCategoryAvailability, CodeYearUnavailable, "")) {
		t.Error("should match structured sentinel of the same category and code")
	}
	if IsRetryable(err) {
		t.Error("year errors are not retryable")
	}
}

func TestWithDetails_Merges(t *testing.T) {
	base := NewTransportError("call failed", nil).WithDetails(Scope("010000500870", "2023-2024", "remote"))
	ext := base.WithDetails(map[string]interface{}{"grpc_code": "Unavailable"})
	if ext.Detail(DetailEntity) != "010000500870" || ext.Detail("grpc_code") != "Unavailable" {
		t.Errorf("unexpected details %+v", ext.Details)
	}
	if _, ok := base.Details["grpc_code"]; ok {
		t.Error("WithDetails must not mutate the receiver")
	}
	if Scope("0100005", "", "local")[DetailYear] != nil {
		t.Error("empty year should be omitted")
	}
}

func TestPredicates(t *testing.T) {
	if !IsEngineInit(fmt.Errorf("x: %w", NewEngineInitError("boom", nil))) {
		t.Error("IsEngineInit")
	}
	if !IsConnectionLost(NewConnectionLostError("gone", nil)) {
		t.Error("IsConnectionLost")
	}
	if !IsTransport(NewTransportError("down", nil)) || IsTransport(NewNotFoundError("none")) {
		t.Error("IsTransport")
	}
	if !IsNotFound(NewNotFoundError("none")) {
		t.Error("IsNotFound")
	}
	if !IsValidation(NewValidationError(CodeInvalidEntity, "bad")) {
		t.Error("IsValidation")
	}
}
