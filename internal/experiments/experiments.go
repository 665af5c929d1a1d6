// Package experiments loads the experiment-settings dump that maps expt_id
// to a scheme label such as "puffer_ttp_cl/bbr".
package experiments

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Unknown is the label of an expt_id absent from the dump.
const Unknown = "unknown"

// Table maps expt_id to scheme label.
type Table struct {
	labels map[uint32]string
}

type settings struct {
	ABRName string `json:"abr_name"`
	ABR     string `json:"abr"`
	CC      string `json:"cc"`
}

// Load reads lines of the form "<expt_id> <json>".
func Load(r io.Reader) (*Table, error) {
	t := &Table{labels: make(map[uint32]string)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		idStr, doc, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("experiment dump line %d: can't find separator", lineNo)
		}
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("experiment dump line %d: invalid expt_id: %w", lineNo, err)
		}
		if id > math.MaxUint16 {
			return nil, fmt.Errorf("experiment dump line %d: expt_id %d out of range", lineNo, id)
		}
		var s settings
		if err := json.Unmarshal([]byte(doc), &s); err != nil {
			return nil, fmt.Errorf("experiment dump line %d: %w", lineNo, err)
		}
		t.labels[uint32(id)] = s.label()
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading experiment dump: %w", err)
	}
	return t, nil
}

// LoadFile reads the dump at path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func (s settings) label() string {
	name := s.ABRName
	if name == "" {
		name = s.ABR
	}
	return name + "/" + s.CC
}

// Scheme returns the label for id.
func (t *Table) Scheme(id uint32) (string, bool) {
	s, ok := t.labels[id]
	return s, ok
}

// Label returns the label for id, or Unknown.
func (t *Table) Label(id uint32) string {
	if s, ok := t.labels[id]; ok {
		return s
	}
	return Unknown
}

// Len returns the number of experiments loaded.
func (t *Table) Len() int { return len(t.labels) }

// FromMap builds a table directly, for callers that already hold labels.
func FromMap(labels map[uint32]string) *Table {
	t := &Table{labels: make(map[uint32]string, len(labels))}
	for k, v := range labels {
		t.labels[k] = v
	}
	return t
}
