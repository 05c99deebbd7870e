package cmdutil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dantte-lp/goslip/internal/cmdutil"
)

func TestParseIPv4(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    [4]byte
		wantErr bool
	}{
		{name: "valid", input: "10.0.2.15", want: [4]byte{10, 0, 2, 15}},
		{name: "valid broadcast-like", input: "255.255.255.255", want: [4]byte{255, 255, 255, 255}},
		{name: "too few octets", input: "10.0.2", wantErr: true},
		{name: "too many octets", input: "10.0.2.15.1", wantErr: true},
		{name: "octet out of range", input: "10.0.2.256", wantErr: true},
		{name: "non-numeric", input: "10.0.2.x", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := cmdutil.ParseIPv4(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseIPv4(%q) = %v, nil, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIPv4(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseIPv4(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	t.Run("wrapped ExitError", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("outer: %w", cmdutil.NewExitError(5, errors.New("boom")))
		if got := cmdutil.ExitCode(err); got != 5 {
			t.Errorf("ExitCode = %d, want 5", got)
		}
	})

	t.Run("bare error defaults to 1", func(t *testing.T) {
		t.Parallel()
		if got := cmdutil.ExitCode(errors.New("plain")); got != 1 {
			t.Errorf("ExitCode = %d, want 1", got)
		}
	})

	t.Run("nil error defaults to 1", func(t *testing.T) {
		t.Parallel()
		if got := cmdutil.ExitCode(nil); got != 1 {
			t.Errorf("ExitCode = %d, want 1", got)
		}
	})
}

func TestExitErrorUnwrap(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("sentinel")
	ee := cmdutil.NewExitError(3, sentinel)

	if !errors.Is(ee, sentinel) {
		t.Error("errors.Is(ee, sentinel) = false, want true")
	}
	if ee.Error() != sentinel.Error() {
		t.Errorf("Error() = %q, want %q", ee.Error(), sentinel.Error())
	}
}
