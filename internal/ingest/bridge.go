package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/mqtt"
)

// Bridge feeds MQTT uplink traffic into the pipeline. Devices publish
// an envelope carrying their identity token and the telemetry payload;
// authentication and projection are exactly the HTTP path's.
type Bridge struct {
	client   *mqtt.Client
	pipeline *Pipeline
	topics   mqtt.Topics
	logger   Logger
}

// envelope is the MQTT uplink message shape.
type envelope struct {
	Token   string          `json:"token"`
	Payload json.RawMessage `json:"payload"`
}

// NewBridge creates an MQTT ingestion bridge.
func NewBridge(client *mqtt.Client, pipeline *Pipeline) *Bridge {
	return &Bridge{
		client:   client,
		pipeline: pipeline,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to both uplink topics.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.client.Subscribe(b.topics.IngestStandalone(), 1, b.handler(ctx, false)); err != nil {
		return fmt.Errorf("subscribing standalone uplink: %w", err)
	}
	if err := b.client.Subscribe(b.topics.IngestGateway(), 1, b.handler(ctx, true)); err != nil {
		return fmt.Errorf("subscribing gateway uplink: %w", err)
	}
	b.logger.Info("mqtt ingestion bridge started")
	return nil
}

// Stop unsubscribes from the uplink topics.
func (b *Bridge) Stop() error {
	if err := b.client.Unsubscribe(b.topics.IngestStandalone()); err != nil {
		return err
	}
	return b.client.Unsubscribe(b.topics.IngestGateway())
}

func (b *Bridge) handler(ctx context.Context, gateway bool) mqtt.MessageHandler {
	return func(topic string, raw []byte) error {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			b.logger.Warn("dropping malformed uplink envelope", "topic", topic, "error", err)
			return nil
		}

		payload, err := ParsePayload(env.Payload)
		if err != nil {
			b.logger.Warn("dropping malformed uplink payload", "topic", topic, "error", err)
			return nil
		}

		if gateway {
			_, err = b.pipeline.IngestGateway(ctx, env.Token, payload)
		} else {
			_, err = b.pipeline.IngestStandalone(ctx, env.Token, payload)
		}
		if err != nil {
			// Devices fire and forget over MQTT; rejected uplinks are
			// logged, not retried.
			b.logger.Warn("uplink rejected", "topic", topic, "error", err)
		}
		return nil
	}
}
