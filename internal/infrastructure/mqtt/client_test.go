package mqtt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/config"
)

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "fieldtrace-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}
}

// disconnectedClient returns a client that was never connected, for
// exercising validation paths without a broker.
func disconnectedClient() *Client {
	return &Client{
		cfg:           testMQTTConfig(),
		subscriptions: make(map[string]subscription),
	}
}

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "fieldtrace/ingest/standalone", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "fieldtrace/ingest/standalone", bytes.Repeat([]byte("a"), maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "fieldtrace/ingest/standalone", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient()
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("fieldtrace/ingest/+", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("fieldtrace/ingest/+", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("fieldtrace/ingest/+", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after failed subscribes, want 0", c.SubscriptionCount())
	}
}
