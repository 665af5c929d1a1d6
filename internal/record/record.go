package record

import (
	"fmt"
	"strings"
)

// Record is a typed partial record for one (entity, timestamp).
//
// Each slot is written at most once. A later write of the same value is a
// no-op; a later write of a different value marks the record bad and keeps
// the first value.
type Record struct {
	schema *Schema
	set    uint8
	bad    bool
	values [MaxSlots]uint64
}

// New returns an empty record for schema.
func New(schema *Schema) *Record {
	return &Record{schema: schema}
}

// Schema returns the record's schema.
func (r *Record) Schema() *Schema { return r.schema }

// Bad reports whether any field received contradictory values.
func (r *Record) Bad() bool { return r.bad }

// Complete reports whether every required field has been set.
func (r *Record) Complete() bool {
	return r.set&r.schema.required == r.schema.required
}

// Missing lists the keys of required fields that were never set.
func (r *Record) Missing() []string {
	var out []string
	for i, f := range r.schema.Fields {
		if f.Required && r.set&(1<<i) == 0 {
			out = append(out, f.Key)
		}
	}
	return out
}

// Merge applies one key/value sighting to the record.
//
// A non-nil Contradiction is returned only for the write that first turns
// the record bad, so callers can report each bad record once. Unknown keys
// return *SchemaError and malformed values return *ParseError; both leave
// the record unchanged.
func (r *Record) Merge(key, raw string, tables *Tables) (*Contradiction, error) {
	slot, ignored, ok := r.schema.lookup(key)
	if !ok {
		return nil, &SchemaError{Measurement: r.schema.Kind.String(), Key: key}
	}
	if ignored {
		return nil, nil
	}

	spec := r.schema.Fields[slot]
	v, err := parseValue(spec, raw, tables)
	if err != nil {
		return nil, &ParseError{Kind: r.schema.Kind, Key: key, Value: raw, Err: err}
	}

	bit := uint8(1) << slot
	if r.set&bit == 0 {
		r.set |= bit
		r.values[slot] = v
		return nil, nil
	}
	if sameValue(spec, r.values[slot], v) || r.bad {
		return nil, nil
	}

	r.bad = true
	return &Contradiction{
		Kind:     r.schema.Kind,
		Key:      key,
		Existing: formatValue(spec, r.values[slot], tables),
		Incoming: formatValue(spec, v, tables),
	}, nil
}

// Get returns the slot encoding of field f and whether it was set.
func (r *Record) Get(f Field) (uint64, bool) {
	slot := r.schema.slot[f]
	if slot < 0 || r.set&(1<<slot) == 0 {
		return 0, false
	}
	return r.values[slot], true
}

func (r *Record) u32(f Field) uint32 {
	v, _ := r.Get(f)
	return uint32(v)
}

// Equal reports whether two records of the same schema hold identical fields.
func (r *Record) Equal(o *Record) bool {
	if r.schema != o.schema || r.set != o.set {
		return false
	}
	for i := range r.schema.Fields {
		if r.set&(1<<i) != 0 && !sameValue(r.schema.Fields[i], r.values[i], o.values[i]) {
			return false
		}
	}
	return true
}

// Format renders the set fields for diagnostics.
func (r *Record) Format(tables *Tables) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s{", r.schema.Kind)
	first := true
	for i, f := range r.schema.Fields {
		if r.set&(1<<i) == 0 {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s=%s", f.Key, formatValue(f, r.values[i], tables))
	}
	if r.bad {
		b.WriteString(", bad")
	}
	b.WriteString("}")
	return b.String()
}
