package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/bluetray/bluetray/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "bluetray-test",
		},
		QoS:         1,
		TopicPrefix: "bluetray",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestTopics(t *testing.T) {
	topics := NewTopics("bluetray")
	addr := "AA:BB:CC:DD:EE:FF"

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"device state", topics.DeviceState(addr), "bluetray/device/AA:BB:CC:DD:EE:FF/state"},
		{"device command", topics.DeviceCommand(addr), "bluetray/device/AA:BB:CC:DD:EE:FF/command"},
		{"all commands", topics.AllDeviceCommands(), "bluetray/device/+/command"},
		{"system status", topics.SystemStatus(), "bluetray/system/status"},
		{"custom prefix", NewTopics("home/bt/").SystemStatus(), "home/bt/system/status"},
		{"empty prefix", NewTopics("").SystemStatus(), "bluetray/system/status"},
		{"zero value", Topics{}.DeviceState(addr), "bluetray/device/AA:BB:CC:DD:EE:FF/state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopics_CommandAddress(t *testing.T) {
	topics := NewTopics("bluetray")

	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"bluetray/device/AA:BB:CC:DD:EE:FF/command", "AA:BB:CC:DD:EE:FF", true},
		{"bluetray/device/AA:BB:CC:DD:EE:FF/state", "", false},
		{"bluetray/device//command", "", false},
		{"bluetray/device/a/b/command", "", false},
		{"other/device/AA:BB:CC:DD:EE:FF/command", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := topics.CommandAddress(tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("CommandAddress(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "bluetray-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}
	if opts.TLSConfig != nil {
		t.Error("TLS configured without broker.tls")
	}
}

func TestBrokerURL_TLS(t *testing.T) {
	b := config.MQTTBrokerConfig{Host: "broker.local", Port: 8883, TLS: true}
	if got := brokerURL(b); got != "ssl://broker.local:8883" {
		t.Errorf("brokerURL() = %q, want ssl://broker.local:8883", got)
	}

	opts := buildClientOptions(config.MQTTConfig{Broker: b})
	if opts.TLSConfig == nil {
		t.Fatal("TLSConfig not set for TLS broker")
	}
}

func TestStatusPayload(t *testing.T) {
	var s Status
	if err := json.Unmarshal(statusPayload("bluetray-1", "offline", "graceful_shutdown"), &s); err != nil {
		t.Fatalf("status payload is not JSON: %v", err)
	}
	if s.Status != "offline" || s.ClientID != "bluetray-1" || s.Reason != "graceful_shutdown" || s.Timestamp == "" {
		t.Errorf("status = %+v", s)
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := newClient(testConfig())
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"publish empty topic", c.Publish("", []byte("x"), 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("t", []byte("x"), 3, false), ErrInvalidQoS},
		{"publish oversize", c.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("t", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe nil handler", c.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("t", 1, noop), ErrNotConnected},
		{"unsubscribe empty", c.Unsubscribe(""), ErrInvalidTopic},
		{"health", c.HealthCheck(context.Background()), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.wantErr) {
				t.Errorf("error = %v, want %v", tt.err, tt.wantErr)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Error("failed subscribe was tracked")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}
