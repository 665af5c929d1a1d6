package record

import "fmt"

// SchemaError reports input that no longer matches the expected record
// shape: an unknown field key for a known kind, or an unknown measurement.
type SchemaError struct {
	Measurement string
	Key         string
}

func (e *SchemaError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("unknown measurement %q", e.Measurement)
	}
	return fmt.Sprintf("%s: unknown field key %q", e.Measurement, e.Key)
}

// ParseError reports a field value that could not be converted to its type.
type ParseError struct {
	Kind  Kind
	Key   string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: invalid value for %s: %q: %v", e.Kind, e.Key, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Contradiction describes the first conflicting write that turned a record bad.
type Contradiction struct {
	Kind      Kind
	Entity    EntityKey
	Timestamp int64
	Key       string
	Existing  string
	Incoming  string
}

func (c *Contradiction) String() string {
	return fmt.Sprintf("%s %s ts=%d: %s=%s contradicts %s",
		c.Kind, c.Entity, c.Timestamp, c.Key, c.Incoming, c.Existing)
}
