package record

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"
)

// EventType is the player state reported by a playback event.
type EventType uint8

const (
	EventInit EventType = iota
	EventStartup
	EventPlay
	EventTimer
	EventRebuffer
)

var eventNames = [...]string{"init", "startup", "play", "timer", "rebuffer"}

func (e EventType) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", uint8(e))
}

// ParseEventType parses an unquoted event name.
func ParseEventType(s string) (EventType, error) {
	for i, n := range eventNames {
		if n == s {
			return EventType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

var (
	errNotInfluxInteger = errors.New("missing influx integer suffix 'i'")
	errNotQuoted        = errors.New("value is not a quoted string")
	errEmptyString      = errors.New("quoted string is empty")
)

// ParseInfluxInteger parses "<digits>i" and rejects values above max.
func ParseInfluxInteger(s string, max uint64) (uint64, error) {
	if s == "" || s[len(s)-1] != 'i' {
		return 0, errNotInfluxInteger
	}
	v, err := strconv.ParseUint(s[:len(s)-1], 10, 64)
	if err != nil {
		return 0, err
	}
	if v > max {
		return 0, fmt.Errorf("integer %d out of range (max %d)", v, max)
	}
	return v, nil
}

// ParseLenientFloat reads the longest numeric prefix of s, the way C atof
// does: decimal and hexadecimal literals, inf, infinity and nan, each with
// an optional sign and in any case. Anything without a numeric prefix reads
// as 0.
func ParseLenientFloat(s string) float32 {
	s = strings.TrimLeft(s, " \t\n\v\f\r")
	lit := numericPrefix(s)
	if lit == "" {
		return 0
	}
	v, err := strconv.ParseFloat(lit, 32)
	if err != nil {
		// Out of range: ParseFloat still returns ±Inf or 0, matching atof.
		var ne *strconv.NumError
		if !errors.As(err, &ne) || !errors.Is(ne.Err, strconv.ErrRange) {
			return 0
		}
	}
	return float32(v)
}

// numericPrefix returns the float literal at the start of s in a form
// strconv.ParseFloat accepts, or "" if there is none.
func numericPrefix(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	sign, rest := s[:i], s[i:]

	for _, word := range []string{"infinity", "inf", "nan"} {
		if len(rest) >= len(word) && strings.EqualFold(rest[:len(word)], word) {
			if word == "nan" {
				return word
			}
			return sign + word
		}
	}
	if len(rest) > 2 && rest[0] == '0' && (rest[1] == 'x' || rest[1] == 'X') {
		if n := hexPrefix(rest[2:]); n > 0 {
			lit := sign + rest[:2+n]
			if !strings.ContainsAny(lit, "pP") {
				lit += "p0"
			}
			return lit
		}
	}

	j := 0
	digits := 0
	for j < len(rest) && isDigit(rest[j]) {
		j++
		digits++
	}
	if j < len(rest) && rest[j] == '.' {
		j++
		for j < len(rest) && isDigit(rest[j]) {
			j++
			digits++
		}
	}
	if digits == 0 {
		return ""
	}
	if n := exponent(rest[j:], 'e'); n > 0 {
		j += n
	}
	return sign + rest[:j]
}

// hexPrefix returns the length of the hexadecimal mantissa and optional
// binary exponent at the start of s.
func hexPrefix(s string) int {
	i, digits := 0, 0
	for i < len(s) && isHexDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isHexDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	return i + exponent(s[i:], 'p')
}

// exponent returns the length of an exponent marked by letter (either case)
// at the start of s, or 0 if there is no complete exponent.
func exponent(s string, letter byte) int {
	if len(s) == 0 || (s[0]|0x20) != letter {
		return 0
	}
	j := 1
	if j < len(s) && (s[j] == '+' || s[j] == '-') {
		j++
	}
	k := j
	for k < len(s) && isDigit(s[k]) {
		k++
	}
	if k == j {
		return 0
	}
	return k
}

func isHexDigit(c byte) bool {
	return isDigit(c) || ('a' <= c|0x20 && c|0x20 <= 'f')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Unquote strips the surrounding double quotes of an influx string value.
func Unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", errNotQuoted
	}
	return s[1 : len(s)-1], nil
}

// ParseIPv4 converts a dotted-quad address to its big-endian integer form.
func ParseIPv4(s string) (uint32, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return 0, err
	}
	if !addr.Is4() {
		return 0, fmt.Errorf("not an IPv4 address: %s", s)
	}
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// FormatIPv4 is the inverse of ParseIPv4.
func FormatIPv4(v uint32) string {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}).String()
}

// parseValue converts raw into the slot encoding for spec.
func parseValue(spec FieldSpec, raw string, tables *Tables) (uint64, error) {
	switch spec.Type {
	case TypeInteger:
		return ParseInfluxInteger(raw, math.MaxUint32)
	case TypeInteger64:
		return ParseInfluxInteger(raw, math.MaxUint64)
	case TypeFloat:
		return uint64(math.Float32bits(ParseLenientFloat(raw))), nil
	case TypeEvent:
		s, err := Unquote(raw)
		if err != nil {
			return 0, err
		}
		e, err := ParseEventType(s)
		return uint64(e), err
	case TypeIPv4:
		s, err := Unquote(raw)
		if err != nil {
			return 0, err
		}
		ip, err := ParseIPv4(s)
		return uint64(ip), err
	case TypeString, TypeOSName:
		s, err := Unquote(raw)
		if err != nil {
			return 0, err
		}
		if spec.NonEmpty && s == "" {
			return 0, errEmptyString
		}
		if spec.Type == TypeOSName {
			s = strings.ReplaceAll(s, " ", "_")
		}
		return uint64(tables.table(spec.Table).Intern(s)), nil
	}
	return 0, fmt.Errorf("unsupported field type %d", spec.Type)
}

// sameValue reports whether two slot encodings hold the same value. Floats
// compare numerically, so 0 and -0 agree, and two NaNs agree with each other.
func sameValue(spec FieldSpec, a, b uint64) bool {
	if spec.Type != TypeFloat {
		return a == b
	}
	fa, fb := math.Float32frombits(uint32(a)), math.Float32frombits(uint32(b))
	return fa == fb || (math.IsNaN(float64(fa)) && math.IsNaN(float64(fb)))
}

// formatValue renders a slot value for diagnostics.
func formatValue(spec FieldSpec, v uint64, tables *Tables) string {
	switch spec.Type {
	case TypeFloat:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(v))), 'g', -1, 32)
	case TypeEvent:
		return EventType(v).String()
	case TypeIPv4:
		return FormatIPv4(uint32(v))
	case TypeString, TypeOSName:
		if tables != nil {
			if s, err := tables.table(spec.Table).Name(uint32(v)); err == nil {
				return strconv.Quote(s)
			}
		}
	}
	return strconv.FormatUint(v, 10)
}
