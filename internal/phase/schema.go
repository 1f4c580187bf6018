package phase

import "fmt"

// Schema is a phase's field schema indexed by field name, built once
// per ingest request and used to project raw payload fields into tagged
// values.
type Schema map[string]FieldType

// BuildSchema indexes a list of field definitions by name.
func BuildSchema(fields []FieldDef) Schema {
	s := make(Schema, len(fields))
	for _, f := range fields {
		s[f.Name] = f.Type
	}
	return s
}

// Project filters a raw payload dictionary through the schema.
//
// Fields not declared in the schema are dropped silently; a device
// firmware sending extras must not fail the whole uplink. Declared
// fields with a value of the wrong type are an error, because silently
// coercing or dropping them would corrupt the record.
func (s Schema) Project(raw map[string]any) (map[string]FieldValue, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	out := make(map[string]FieldValue)
	for name, rawValue := range raw {
		ftype, declared := s[name]
		if !declared {
			continue
		}
		v, err := ParseValue(ftype, rawValue)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = v
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
