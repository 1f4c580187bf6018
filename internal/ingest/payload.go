package ingest

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is a decoded telemetry message. Fields holds the raw
// key/value pairs the device sent; projection against the phase schema
// happens inside the pipeline, not here.
type Payload struct {
	// CreatedAt is the device-claimed event time. Nil means the device
	// did not say, and the server's receive time is used instead.
	CreatedAt *time.Time

	// NodeAlias names the node a gateway is relaying for. Empty on
	// standalone ingestion and on a gateway's own telemetry.
	NodeAlias string

	Fields map[string]any
}

// payload keys with meaning to the pipeline rather than the schema.
const (
	keyCreatedAt = "created_at"
	keyNodeAlias = "node_alias"
)

// ParsePayload decodes a JSON payload. The created_at and node_alias
// keys are lifted out; everything else stays in Fields for projection.
func ParsePayload(raw []byte) (*Payload, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	p := &Payload{Fields: fields}

	if v, ok := fields[keyCreatedAt]; ok {
		delete(fields, keyCreatedAt)
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: created_at must be a string", ErrMalformedPayload)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%w: created_at: %v", ErrMalformedPayload, err)
		}
		p.CreatedAt = &t
	}

	if v, ok := fields[keyNodeAlias]; ok {
		delete(fields, keyNodeAlias)
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: node_alias must be a string", ErrMalformedPayload)
		}
		p.NodeAlias = s
	}

	return p, nil
}
