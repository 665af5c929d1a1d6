// Package intern maps repeated string values (usernames, browsers, OS names,
// formats, channels) to small integer IDs for the lifetime of one run.
package intern

import "fmt"

// Table is a bidirectional string <-> ID mapping populated lazily.
//
// IDs are assigned densely from 0 in insertion order. Not safe for concurrent
// mutation; lookups are safe once ingestion has finished.
type Table struct {
	name    string
	forward map[string]uint32
	reverse []string
}

// New creates an empty table. The name only appears in error messages.
func New(name string) *Table {
	return &Table{
		name:    name,
		forward: make(map[string]uint32),
	}
}

// Intern returns the ID for s, inserting it if absent.
func (t *Table) Intern(s string) uint32 {
	if id, ok := t.forward[s]; ok {
		return id
	}
	id := uint32(len(t.reverse))
	t.forward[s] = id
	t.reverse = append(t.reverse, s)
	return id
}

// Lookup returns the ID for s without inserting.
func (t *Table) Lookup(s string) (uint32, bool) {
	id, ok := t.forward[s]
	return id, ok
}

// Name returns the string for id.
func (t *Table) Name(id uint32) (string, error) {
	if int(id) >= len(t.reverse) {
		return "", fmt.Errorf("%s id %d not found", t.name, id)
	}
	return t.reverse[id], nil
}

// MustName is Name for IDs that were produced by this table.
func (t *Table) MustName(id uint32) string {
	s, err := t.Name(id)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of distinct values interned.
func (t *Table) Len() int {
	return len(t.reverse)
}
