package platform

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{ModeExit, false},
		{ModeReboot, false},
		{"", true},
		{"halt", true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			r, err := New(tt.mode)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownMode) {
					t.Errorf("New(%q) error = %v, want ErrUnknownMode", tt.mode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q) error = %v", tt.mode, err)
			}
			if r.Mode() != tt.mode {
				t.Errorf("Mode() = %q", r.Mode())
			}
		})
	}
}

func newTestRestarter(t *testing.T, mode string, rebootErr error) (*Restarter, *[]string) {
	t.Helper()
	r, err := New(mode)
	if err != nil {
		t.Fatal(err)
	}
	var calls []string
	r.exit = func(code int) { calls = append(calls, "exit "+strconv.Itoa(code)) }
	r.reboot = func() error {
		calls = append(calls, "reboot")
		return rebootErr
	}
	r.OnRestart(func() { calls = append(calls, "before") })
	return r, &calls
}

func TestRestart_Exit(t *testing.T) {
	r, calls := newTestRestarter(t, ModeExit, nil)
	r.Restart()
	if got := strings.Join(*calls, ","); got != "before,exit 3" {
		t.Errorf("calls = %s, want before,exit 3", got)
	}
}

func TestRestart_Reboot(t *testing.T) {
	r, calls := newTestRestarter(t, ModeReboot, nil)
	r.Restart()
	if got := strings.Join(*calls, ","); got != "before,reboot" {
		t.Errorf("calls = %s, want before,reboot", got)
	}
}

func TestRestart_RebootFallsBackToExit(t *testing.T) {
	r, calls := newTestRestarter(t, ModeReboot, errors.New("operation not permitted"))
	r.Restart()
	if got := strings.Join(*calls, ","); got != "before,reboot,exit 3" {
		t.Errorf("calls = %s, want before,reboot,exit 3", got)
	}
}
