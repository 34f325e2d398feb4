//go:build integration

package mqtt

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/airrelay/internal/infrastructure/config"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS:       1,
		Reconnect: config.MQTTReconnectConfig{Interval: 1},
	}
}

func connectIntegration(t *testing.T, clientID string) *Client {
	t.Helper()
	c := New(integrationConfig(clientID))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect(%s) error = %v", clientID, err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup
	return c
}

// TestIntegration_OutgoingRoundtrip publishes to a device's outbound topic
// and receives it as the device would.
func TestIntegration_OutgoingRoundtrip(t *testing.T) {
	ctx := context.Background()
	imei := fmt.Sprintf("itest%d", time.Now().UnixNano())
	topic, err := Topics{}.SMSOutgoing(imei)
	if err != nil {
		t.Fatalf("SMSOutgoing() error = %v", err)
	}

	received := make(chan string, 1)
	device := New(integrationConfig("airrelay-int-device"))
	if err := device.Subscribe(ctx, topic, 1, func(_ string, p []byte) error {
		select {
		case received <- string(p):
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := device.Connect(ctx); err != nil {
		t.Fatalf("device Connect() error = %v", err)
	}
	defer device.Close()

	bridge := connectIntegration(t, "airrelay-int-bridge")

	expected := `{"recipient":"+15550001","content":"hi","message_id":"m1"}`
	if err := bridge.Publish(ctx, topic, []byte(expected), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != expected {
			t.Errorf("received = %q, want %q", msg, expected)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}
}

// TestIntegration_PresenceRetained verifies the bridge leaves a retained
// online presence message that a late subscriber still sees.
func TestIntegration_PresenceRetained(t *testing.T) {
	ctx := context.Background()
	connectIntegration(t, "airrelay-int-presence")

	got := make(chan string, 1)
	watcher := New(integrationConfig("airrelay-int-watcher"))
	if err := watcher.Subscribe(ctx, TopicBridgeStatus, 1, func(_ string, p []byte) error {
		select {
		case got <- string(p):
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := watcher.Connect(ctx); err != nil {
		t.Fatalf("watcher Connect() error = %v", err)
	}
	defer watcher.Close()

	select {
	case msg := <-got:
		if msg == "" {
			t.Error("empty presence payload")
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for retained presence")
	}
}
