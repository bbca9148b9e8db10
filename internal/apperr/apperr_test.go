package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/mallquest/mallquest/internal/domain"
)

func TestWrapClassifiesSentinels(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"not found", domain.ErrUserNotFound, KindNotFound},
		{"conflict", domain.ErrVersionConflict, KindConflict},
		{"rate limited", domain.ErrRateLimited, KindRateLimited},
		{"invalid credentials", domain.ErrInvalidCredentials, KindAuthentication},
		{"account locked", domain.ErrAccountLocked, KindAuthorization},
		{"insufficient funds", domain.ErrInsufficientFunds, KindValidation},
		{"busy", domain.ErrBusy, KindTransient},
		{"unknown", errors.New("boom"), KindFatal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Wrap(tc.err)
			if got.Kind != tc.kind {
				t.Fatalf("Wrap(%v).Kind = %v, want %v", tc.err, got.Kind, tc.kind)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("Wrap(%v) lost the original error in Unwrap chain", tc.err)
			}
		})
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if Wrap(nil) != nil {
		t.Fatal("Wrap(nil) should return nil")
	}
}

func TestWrapPassesThroughExistingError(t *testing.T) {
	original := New(KindValidation, "bad_input", "bad input")
	got := Wrap(original)
	if got != original {
		t.Fatalf("Wrap should return the same *Error instance unchanged, got %#v", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:     http.StatusBadRequest,
		KindAuthentication: http.StatusUnauthorized,
		KindAuthorization:  http.StatusForbidden,
		KindNotFound:       http.StatusNotFound,
		KindConflict:       http.StatusConflict,
		KindRateLimited:    http.StatusTooManyRequests,
		KindTransient:      http.StatusServiceUnavailable,
		KindFatal:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", kind, got, want)
		}
	}
}

func TestErrorMessageIncludesWrapped(t *testing.T) {
	e := &Error{Message: "resource not found", Err: domain.ErrUserNotFound}
	want := "resource not found: user not found"
	if e.Error() != want {
		t.Fatalf("Error() = %q, want %q", e.Error(), want)
	}
}
