// Package parser tokenizes influx line-protocol exports into points.
//
// Every data line of an export has three space-separated sections:
//
//	client_buffer,channel=abc,server_id=1 cum_rebuf=2.183 1546379215825000000
//	^measurement,tag set                  ^one field     ^timestamp (ns)
//
// Separators inside double-quoted values do not split.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Point is one field sighting.
type Point struct {
	Measurement string
	// Tags holds the raw "key=value" tag fields after the measurement.
	Tags      []string
	Key       string
	Value     string
	Timestamp int64
}

// Tag returns the value of tag name.
func (p *Point) Tag(name string) (string, bool) {
	for _, t := range p.Tags {
		if len(t) > len(name) && t[len(name)] == '=' && strings.HasPrefix(t, name) {
			return t[len(name)+1:], true
		}
	}
	return "", false
}

// Disposition says what to do with a line.
type Disposition uint8

const (
	// LinePoint carries a point.
	LinePoint Disposition = iota
	// LineSkip is blank, a comment or DDL; it is dropped silently.
	LineSkip
	// LineMalformed has the wrong number of sections; it is logged and
	// dropped.
	LineMalformed
)

var (
	errNoMeasurement = errors.New("no measurement")
	errFieldSet      = errors.New("irregular number of fields in field set")
)

// SplitQuoted splits s on sep, ignoring separators inside double quotes.
// It appends to dst and returns the extended slice.
func SplitQuoted(dst []string, s string, sep byte) []string {
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == sep:
			dst = append(dst, s[start:i])
			start = i + 1
		}
	}
	return append(dst, s[start:])
}

// Tokenizer splits lines into points, reusing its scratch slices.
type Tokenizer struct {
	sections []string
	tagset   []string
	kv       []string
}

// Parse tokenizes one line. An error is returned only for a LinePoint line
// whose sections cannot be parsed. The returned point's Tags slice is only
// valid until the next call.
func (t *Tokenizer) Parse(line string) (Point, Disposition, error) {
	if line == "" || line[0] == '#' {
		return Point{}, LineSkip, nil
	}

	t.sections = SplitQuoted(t.sections[:0], line, ' ')
	if len(t.sections) != 3 {
		if strings.HasPrefix(line, "CREATE DATABASE") {
			return Point{}, LineSkip, nil
		}
		return Point{}, LineMalformed, nil
	}

	ts, err := strconv.ParseUint(t.sections[2], 10, 63)
	if err != nil {
		return Point{}, LinePoint, fmt.Errorf("invalid timestamp %q: %w", t.sections[2], err)
	}

	t.tagset = SplitQuoted(t.tagset[:0], t.sections[0], ',')
	if t.tagset[0] == "" {
		return Point{}, LinePoint, errNoMeasurement
	}

	t.kv = SplitQuoted(t.kv[:0], t.sections[1], '=')
	if len(t.kv) != 2 {
		return Point{}, LinePoint, errFieldSet
	}

	return Point{
		Measurement: t.tagset[0],
		Tags:        t.tagset[1:],
		Key:         t.kv[0],
		Value:       t.kv[1],
		Timestamp:   int64(ts),
	}, LinePoint, nil
}

// LineError locates a fatal parse failure in the input.
type LineError struct {
	Input  string
	LineNo int64
	Line   string
	Err    error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s:%d: %v: %q", e.Input, e.LineNo, e.Err, e.Line)
}

func (e *LineError) Unwrap() error { return e.Err }
