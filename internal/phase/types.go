package phase

import (
	"encoding/json"
	"fmt"
	"time"
)

// Phase is the scoping record for a bounded monitoring deployment.
// Sessions, field schemas, and geofences all hang off a phase. Full
// phase lifecycle management lives in the surrounding platform; this
// service keeps the minimal row it needs for scoping and teardown.
type Phase struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Active    bool       `json:"active"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FieldDef declares a custom telemetry field for a phase. Every phase
// schema also carries the four default fields (latitude, longitude,
// temperature, battery), created alongside the phase row.
type FieldDef struct {
	ID          string    `json:"id"`
	PhaseID     string    `json:"phase_id"`
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// FieldType is the declared type of a phase telemetry field.
type FieldType string

// FieldType constants.
const (
	FieldTypeNumber  FieldType = "number"
	FieldTypeString  FieldType = "string"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
)

// IsValid reports whether the field type is a recognised value.
func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeNumber, FieldTypeString, FieldTypeBoolean, FieldTypeDate:
		return true
	default:
		return false
	}
}

// Default field names present on every phase schema.
const (
	FieldLatitude    = "latitude"
	FieldLongitude   = "longitude"
	FieldTemperature = "temperature"
	FieldBattery     = "battery"
)

// defaultFields returns the field definitions every phase starts with.
func defaultFields() []FieldDef {
	return []FieldDef{
		{Name: FieldLatitude, Type: FieldTypeNumber, Description: "Position latitude in decimal degrees"},
		{Name: FieldLongitude, Type: FieldTypeNumber, Description: "Position longitude in decimal degrees"},
		{Name: FieldTemperature, Type: FieldTypeNumber, Description: "Ambient temperature in degrees Celsius"},
		{Name: FieldBattery, Type: FieldTypeNumber, Description: "Battery level in percent"},
	}
}

// FieldValue is a tagged telemetry value. Exactly one of the value
// fields is meaningful, selected by Type. Projection through the phase
// schema produces these; an open dictionary never crosses the storage
// boundary.
type FieldValue struct {
	Type   FieldType
	Number float64
	Str    string
	Bool   bool
	Date   time.Time
}

// NumberValue wraps a float64 as a tagged value.
func NumberValue(v float64) FieldValue {
	return FieldValue{Type: FieldTypeNumber, Number: v}
}

// StringValue wraps a string as a tagged value.
func StringValue(s string) FieldValue {
	return FieldValue{Type: FieldTypeString, Str: s}
}

// BoolValue wraps a bool as a tagged value.
func BoolValue(b bool) FieldValue {
	return FieldValue{Type: FieldTypeBoolean, Bool: b}
}

// DateValue wraps a timestamp as a tagged value.
func DateValue(t time.Time) FieldValue {
	return FieldValue{Type: FieldTypeDate, Date: t.UTC()}
}

// fieldValueJSON is the wire/storage form of FieldValue.
type fieldValueJSON struct {
	Type  FieldType `json:"type"`
	Value any       `json:"value"`
}

// MarshalJSON encodes the tagged value as {"type": ..., "value": ...}.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	out := fieldValueJSON{Type: v.Type}
	switch v.Type {
	case FieldTypeNumber:
		out.Value = v.Number
	case FieldTypeString:
		out.Value = v.Str
	case FieldTypeBoolean:
		out.Value = v.Bool
	case FieldTypeDate:
		out.Value = v.Date.UTC().Format(time.RFC3339)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFieldType, v.Type)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged form back into a FieldValue.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var raw fieldValueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseValue(raw.Type, raw.Value)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseValue coerces a decoded JSON value into a tagged FieldValue of
// the declared type. JSON numbers arrive as float64, dates as RFC3339
// strings. A mismatch returns ErrTypeMismatch.
func ParseValue(t FieldType, raw any) (FieldValue, error) {
	switch t {
	case FieldTypeNumber:
		n, ok := raw.(float64)
		if !ok {
			return FieldValue{}, fmt.Errorf("%w: %v is not a number", ErrTypeMismatch, raw)
		}
		return NumberValue(n), nil
	case FieldTypeString:
		s, ok := raw.(string)
		if !ok {
			return FieldValue{}, fmt.Errorf("%w: %v is not a string", ErrTypeMismatch, raw)
		}
		return StringValue(s), nil
	case FieldTypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return FieldValue{}, fmt.Errorf("%w: %v is not a boolean", ErrTypeMismatch, raw)
		}
		return BoolValue(b), nil
	case FieldTypeDate:
		s, ok := raw.(string)
		if !ok {
			return FieldValue{}, fmt.Errorf("%w: %v is not a date string", ErrTypeMismatch, raw)
		}
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return FieldValue{}, fmt.Errorf("%w: %q is not RFC3339", ErrTypeMismatch, s)
		}
		return DateValue(ts), nil
	default:
		return FieldValue{}, fmt.Errorf("%w: %q", ErrInvalidFieldType, t)
	}
}
