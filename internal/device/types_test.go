package device

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Address
		wantErr bool
	}{
		{name: "canonical", input: "AA:BB:CC:DD:EE:FF", want: "AA:BB:CC:DD:EE:FF"},
		{name: "lower case", input: "aa:bb:cc:dd:ee:ff", want: "AA:BB:CC:DD:EE:FF"},
		{name: "dashes", input: "00-1a-7d-da-71-13", want: "00:1A:7D:DA:71:13"},
		{name: "bare hex", input: "001A7DDA7113", want: "00:1A:7D:DA:71:13"},
		{name: "surrounding space", input: " AA:BB:CC:DD:EE:FF\n", want: "AA:BB:CC:DD:EE:FF"},
		{name: "mixed separators", input: "AA:BB-CC:DD:EE:FF", wantErr: true},
		{name: "too short", input: "AA:BB:CC:DD:EE", wantErr: true},
		{name: "non hex", input: "GG:BB:CC:DD:EE:FF", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Errorf("ParseAddress(%q) error = %v, want ErrInvalidAddress", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestAddress_Uint64RoundTrip(t *testing.T) {
	a := MustParseAddress("00:1A:7D:DA:71:13")
	if got := a.Uint64(); got != 0x001A7DDA7113 {
		t.Fatalf("Uint64() = %#x", got)
	}
	if got := AddressFromUint64(0x001A7DDA7113); got != a {
		t.Errorf("AddressFromUint64() = %q, want %q", got, a)
	}
}

func TestConnState_Predicates(t *testing.T) {
	tests := []struct {
		state    ConnState
		inFlight bool
		settled  bool
	}{
		{Disconnected(), false, true},
		{Connecting(), true, false},
		{Connected(), false, true},
		{Disconnecting(), true, false},
		{Failed("timeout", StateDisconnected), false, true},
		{ConnState{}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := tt.state.InFlight(); got != tt.inFlight {
				t.Errorf("InFlight() = %v, want %v", got, tt.inFlight)
			}
			if got := tt.state.Settled(); got != tt.settled {
				t.Errorf("Settled() = %v, want %v", got, tt.settled)
			}
		})
	}
}

func TestConnState_Effective(t *testing.T) {
	tests := []struct {
		name  string
		state ConnState
		want  StateKind
	}{
		{"connected", Connected(), StateConnected},
		{"connecting", Connecting(), StateConnecting},
		{"failed connect", Failed("timeout", StateDisconnected), StateDisconnected},
		{"failed disconnect", Failed("device unreachable", StateConnected), StateConnected},
		{"failed without target", ConnState{Kind: StateFailed, Reason: "busy"}, StateDisconnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Effective(); got != tt.want {
				t.Errorf("Effective() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConnState_JSON(t *testing.T) {
	data, err := json.Marshal(Failed("timeout", StateDisconnected))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"kind":"failed","reason":"timeout","revert_to":"disconnected"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	data, _ = json.Marshal(Connected())
	if string(data) != `{"kind":"connected"}` {
		t.Errorf("Marshal(Connected) = %s", data)
	}
}

func TestParseStateKind_Invalid(t *testing.T) {
	if _, err := ParseStateKind("pairing"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ParseStateKind() error = %v, want ErrInvalidState", err)
	}
}

func TestDevice_DisplayName(t *testing.T) {
	if got := (Device{Address: addrA}).DisplayName(); got != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("DisplayName() = %q, want address fallback", got)
	}
	if got := (Device{Address: addrA, Name: "Buds"}).DisplayName(); got != "Buds" {
		t.Errorf("DisplayName() = %q, want %q", got, "Buds")
	}
}
