package cmd

import (
	"errors"
	"fmt"
	"testing"

	"panelauth/internal/oauth"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "generic error",
			err:  errors.New("boom"),
			want: ExitCodeError,
		},
		{
			name: "auth required",
			err:  errAuthRequired,
			want: ExitCodeAuthRequired,
		},
		{
			name: "wrapped auth required",
			err:  fmt.Errorf("deploy key: %w", errAuthRequired),
			want: ExitCodeAuthRequired,
		},
		{
			name: "authorization denied",
			err:  &oauth.AuthorizationDeniedError{Code: "access_denied"},
			want: ExitCodeAuthFailed,
		},
		{
			name: "state mismatch",
			err:  fmt.Errorf("callback: %w", oauth.ErrStateMismatch),
			want: ExitCodeAuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getExitCode(tt.err); got != tt.want {
				t.Errorf("getExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestSetVersion(t *testing.T) {
	defer SetVersion(GetVersion())

	SetVersion("1.2.3")
	if GetVersion() != "1.2.3" {
		t.Errorf("GetVersion() = %q, want 1.2.3", GetVersion())
	}
}
