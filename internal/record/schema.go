// Package record folds repeated key/value sightings for one entity and
// timestamp into a single typed partial record.
//
// All measurement kinds share one Record type. What differs between kinds is
// the Schema: which keys are accepted, how their values are typed, which keys
// are silently ignored and which fields must be present for the record to be
// complete.
package record

import (
	"fmt"

	"github.com/StanfordSNR/puffer-statistics-sub000/internal/intern"
)

// Kind identifies a measurement kind.
type Kind uint8

const (
	KindPlayback Kind = iota
	KindClientInfo
	KindChunkSent
	KindChunkAcked
	numKinds
)

// Kinds lists every kind in a stable order.
var Kinds = [...]Kind{KindPlayback, KindClientInfo, KindChunkSent, KindChunkAcked}

var kindMeasurements = [numKinds]string{
	KindPlayback:   "client_buffer",
	KindClientInfo: "client_sysinfo",
	KindChunkSent:  "video_sent",
	KindChunkAcked: "video_acked",
}

// String returns the influx measurement name for the kind.
func (k Kind) String() string {
	if k < numKinds {
		return kindMeasurements[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// KindForMeasurement maps a measurement name to its kind.
func KindForMeasurement(name string) (Kind, bool) {
	for k, m := range kindMeasurements {
		if m == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// Field is a schema-independent field identity.
type Field uint8

const (
	FieldFirstInitID Field = iota
	FieldInitID
	FieldExptID
	FieldUser
	FieldEvent
	FieldBuffer
	FieldCumRebuf
	FieldBrowser
	FieldOS
	FieldIP
	FieldSSIMIndex
	FieldDeliveryRate
	FieldSize
	FieldFormat
	FieldVideoTS
	numFields
)

// FieldType selects the parser applied to a raw value.
type FieldType uint8

const (
	// TypeInteger is an influx integer ("123i") that must fit in 32 bits.
	TypeInteger FieldType = iota
	// TypeInteger64 is an influx integer that may use the full 64 bits.
	TypeInteger64
	// TypeFloat is parsed permissively; a non-numeric value reads as 0.
	TypeFloat
	// TypeString is a quoted string stored as an intern ID.
	TypeString
	// TypeOSName is a quoted string with spaces folded to underscores.
	TypeOSName
	// TypeEvent is a quoted playback event type.
	TypeEvent
	// TypeIPv4 is a quoted dotted-quad address stored as a 32-bit integer.
	TypeIPv4
)

// TableID names one of the run's intern tables.
type TableID uint8

const (
	TableNone TableID = iota
	TableUsers
	TableBrowsers
	TableOS
	TableFormats
)

// Tables holds the intern tables shared by every record in a run.
type Tables struct {
	Users    *intern.Table
	Browsers *intern.Table
	OS       *intern.Table
	Formats  *intern.Table
	Channels *intern.Table
}

// NewTables returns empty intern tables.
func NewTables() *Tables {
	return &Tables{
		Users:    intern.New("username"),
		Browsers: intern.New("browser"),
		OS:       intern.New("os"),
		Formats:  intern.New("format"),
		Channels: intern.New("channel"),
	}
}

func (t *Tables) table(id TableID) *intern.Table {
	switch id {
	case TableUsers:
		return t.Users
	case TableBrowsers:
		return t.Browsers
	case TableOS:
		return t.OS
	case TableFormats:
		return t.Formats
	}
	return nil
}

// FieldSpec describes one accepted key.
type FieldSpec struct {
	Key      string
	Field    Field
	Type     FieldType
	Table    TableID
	Required bool
	// NonEmpty rejects "" for quoted strings.
	NonEmpty bool
}

// MaxSlots bounds the number of fields a schema may declare.
const MaxSlots = 8

// Schema is the field-dispatch table for one kind.
type Schema struct {
	Kind     Kind
	Fields   []FieldSpec
	Ignored  []string
	byKey    map[string]int
	ignored  map[string]struct{}
	slot     [numFields]int8
	required uint8
}

// NewSchema indexes the given field specs. It panics if the specs exceed
// MaxSlots or repeat a key, since schemas are static program data.
func NewSchema(kind Kind, fields []FieldSpec, ignored []string) *Schema {
	if len(fields) > MaxSlots {
		panic(fmt.Sprintf("schema %s: %d fields exceeds %d", kind, len(fields), MaxSlots))
	}
	s := &Schema{
		Kind:    kind,
		Fields:  fields,
		Ignored: ignored,
		byKey:   make(map[string]int, len(fields)),
		ignored: make(map[string]struct{}, len(ignored)),
	}
	for i := range s.slot {
		s.slot[i] = -1
	}
	for i, f := range fields {
		if _, dup := s.byKey[f.Key]; dup {
			panic(fmt.Sprintf("schema %s: duplicate key %q", kind, f.Key))
		}
		s.byKey[f.Key] = i
		s.slot[f.Field] = int8(i)
		if f.Required {
			s.required |= 1 << i
		}
	}
	for _, k := range ignored {
		s.ignored[k] = struct{}{}
	}
	return s
}

// lookup resolves a key to its slot. ignored reports a known key that carries
// no data for this kind.
func (s *Schema) lookup(key string) (slot int, ignored bool, ok bool) {
	if i, found := s.byKey[key]; found {
		return i, false, true
	}
	if _, found := s.ignored[key]; found {
		return -1, true, true
	}
	return -1, false, false
}

// Has reports whether the schema declares field f.
func (s *Schema) Has(f Field) bool {
	return s.slot[f] >= 0
}

var identityFields = []FieldSpec{
	{Key: "first_init_id", Field: FieldFirstInitID, Type: TypeInteger},
	{Key: "init_id", Field: FieldInitID, Type: TypeInteger, Required: true},
	{Key: "expt_id", Field: FieldExptID, Type: TypeInteger, Required: true},
	{Key: "user", Field: FieldUser, Type: TypeString, Table: TableUsers, Required: true, NonEmpty: true},
}

func withIdentity(extra ...FieldSpec) []FieldSpec {
	out := make([]FieldSpec, 0, len(identityFields)+len(extra))
	out = append(out, identityFields...)
	return append(out, extra...)
}

// Built-in schemas.
var (
	PlaybackSchema = NewSchema(KindPlayback, withIdentity(
		FieldSpec{Key: "event", Field: FieldEvent, Type: TypeEvent, Required: true},
		FieldSpec{Key: "buffer", Field: FieldBuffer, Type: TypeFloat, Required: true},
		FieldSpec{Key: "cum_rebuf", Field: FieldCumRebuf, Type: TypeFloat, Required: true},
	), nil)

	ClientInfoSchema = NewSchema(KindClientInfo, withIdentity(
		FieldSpec{Key: "browser", Field: FieldBrowser, Type: TypeString, Table: TableBrowsers, Required: true},
		FieldSpec{Key: "os", Field: FieldOS, Type: TypeOSName, Table: TableOS, Required: true},
		FieldSpec{Key: "ip", Field: FieldIP, Type: TypeIPv4, Required: true},
	), []string{"screen_width", "screen_height"})

	ChunkSentSchema = NewSchema(KindChunkSent, withIdentity(
		FieldSpec{Key: "ssim_index", Field: FieldSSIMIndex, Type: TypeFloat, Required: true},
		FieldSpec{Key: "delivery_rate", Field: FieldDeliveryRate, Type: TypeInteger, Required: true},
		FieldSpec{Key: "size", Field: FieldSize, Type: TypeInteger, Required: true},
		FieldSpec{Key: "format", Field: FieldFormat, Type: TypeString, Table: TableFormats},
	), []string{"buffer", "cum_rebuffer", "cwnd", "in_flight", "min_rtt", "rtt", "video_ts"})

	ChunkAckedSchema = NewSchema(KindChunkAcked, withIdentity(
		FieldSpec{Key: "video_ts", Field: FieldVideoTS, Type: TypeInteger64, Required: true},
	), []string{"buffer", "cum_rebuffer", "format", "ssim_index"})
)

// SchemaFor returns the built-in schema of a kind.
func SchemaFor(k Kind) *Schema {
	switch k {
	case KindPlayback:
		return PlaybackSchema
	case KindClientInfo:
		return ClientInfoSchema
	case KindChunkSent:
		return ChunkSentSchema
	case KindChunkAcked:
		return ChunkAckedSchema
	}
	return nil
}
