package record

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// NoChannel is the channel component of entity keys for kinds that are not
// tagged with a channel.
const NoChannel = math.MaxUint32

// EntityKey addresses one series in a Store.
type EntityKey struct {
	Server  uint32
	Channel uint32
}

func (k EntityKey) String() string {
	if k.Channel == NoChannel {
		return fmt.Sprintf("server=%d", k.Server)
	}
	return fmt.Sprintf("server=%d channel=%d", k.Server, k.Channel)
}

// Compare orders keys by server then channel.
func (k EntityKey) Compare(o EntityKey) int {
	if c := cmp.Compare(k.Server, o.Server); c != 0 {
		return c
	}
	return cmp.Compare(k.Channel, o.Channel)
}

// Series holds one entity's records keyed by timestamp.
type Series struct {
	records map[int64]*Record
	order   []int64
	sorted  bool
}

func newSeries() *Series {
	return &Series{records: make(map[int64]*Record), sorted: true}
}

func (s *Series) getOrCreate(ts int64, schema *Schema) *Record {
	if r, ok := s.records[ts]; ok {
		return r
	}
	r := New(schema)
	s.records[ts] = r
	if n := len(s.order); n > 0 && s.order[n-1] > ts {
		s.sorted = false
	}
	s.order = append(s.order, ts)
	return r
}

// Len returns the number of timestamps in the series.
func (s *Series) Len() int { return len(s.order) }

// Timestamps returns the series timestamps in ascending order. The returned
// slice is owned by the series.
func (s *Series) Timestamps() []int64 {
	if !s.sorted {
		slices.Sort(s.order)
		s.sorted = true
	}
	return s.order
}

// At returns the record at ts, or nil.
func (s *Series) At(ts int64) *Record { return s.records[ts] }

// Store is an arena of per-entity series for one kind.
type Store struct {
	schema  *Schema
	tables  *Tables
	series  map[EntityKey]*Series
	records int
}

// NewStore returns an empty store for schema. Interned fields use tables.
func NewStore(schema *Schema, tables *Tables) *Store {
	return &Store{
		schema: schema,
		tables: tables,
		series: make(map[EntityKey]*Series),
	}
}

// Schema returns the schema of every record in the store.
func (s *Store) Schema() *Schema { return s.schema }

// Merge folds one field sighting into the record at (entity, ts), creating
// it when needed. Keys the schema ignores never create a record.
func (s *Store) Merge(entity EntityKey, ts int64, key, raw string) (*Contradiction, error) {
	if _, ignored, ok := s.schema.lookup(key); ok && ignored {
		return nil, nil
	}

	ser, ok := s.series[entity]
	if !ok {
		ser = newSeries()
		s.series[entity] = ser
	}
	before := ser.Len()
	rec := ser.getOrCreate(ts, s.schema)
	if ser.Len() != before {
		s.records++
	}

	c, err := rec.Merge(key, raw, s.tables)
	if c != nil {
		c.Entity = entity
		c.Timestamp = ts
	}
	return c, err
}

// Len returns the number of records across all series.
func (s *Store) Len() int { return s.records }

// Entities returns every entity key in ascending order.
func (s *Store) Entities() []EntityKey {
	keys := make([]EntityKey, 0, len(s.series))
	for k := range s.series {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, EntityKey.Compare)
	return keys
}

// Series returns the series of entity, or nil.
func (s *Store) Series(entity EntityKey) *Series { return s.series[entity] }

// Each visits every record, entities in ascending key order and each series
// in ascending timestamp order. It stops at the first error fn returns.
func (s *Store) Each(fn func(entity EntityKey, ts int64, r *Record) error) error {
	for _, e := range s.Entities() {
		ser := s.series[e]
		for _, ts := range ser.Timestamps() {
			if err := fn(e, ts, ser.records[ts]); err != nil {
				return err
			}
		}
	}
	return nil
}
