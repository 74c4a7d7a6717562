package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "timeout sentinel", err: ErrTimeout, want: "timeout"},
		{name: "context deadline", err: fmt.Errorf("connecting: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "not paired", err: ErrDeviceNotPaired, want: "device not paired"},
		{name: "unreachable", err: ErrDeviceUnreachable, want: "device unreachable"},
		{name: "os error reason", err: &OSError{Op: "BluetoothSetServiceState", Reason: "no supported audio profile"}, want: "no supported audio profile"},
		{name: "cancelled", err: context.Canceled, want: "cancelled"},
		{name: "other", err: errors.New("radio off"), want: "radio off"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reason(tt.err); got != tt.want {
				t.Errorf("Reason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOSError_Is(t *testing.T) {
	err := fmt.Errorf("connect: %w", &OSError{Op: "BluetoothGetDeviceInfo", Code: 1168, Reason: "device not paired", Err: ErrDeviceNotPaired})

	if !errors.Is(err, ErrGatewayFailure) {
		t.Error("OSError should match ErrGatewayFailure")
	}
	if !errors.Is(err, ErrDeviceNotPaired) {
		t.Error("OSError should match its wrapped sentinel")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("OSError should not match unrelated sentinels")
	}
}
