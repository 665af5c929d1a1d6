package parser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

// DefaultMaxLineLength is the longest accepted export line in bytes.
const DefaultMaxLineLength = 255

// ErrLineTooLong is wrapped by the LineError for an over-long line.
var ErrLineTooLong = errors.New("line too long")

// PointHandler consumes points in input order. Returning an error stops the
// reader.
type PointHandler interface {
	HandlePoint(p *Point) error
}

// MalformedHandler is told about lines that were dropped for having the
// wrong number of sections.
type MalformedHandler interface {
	HandleMalformed(input string, lineNo int64, line string)
}

// Reader feeds the lines of one input to a PointHandler.
//
// Counters are atomic so a progress display may poll Stats while Run is in
// progress on another goroutine.
type Reader struct {
	name      string
	src       io.Reader
	maxLine   int
	malformed MalformedHandler

	bytesRead atomic.Int64
	linesRead atomic.Int64
	points    atomic.Int64
	skipped   atomic.Int64
	dropped   atomic.Int64
}

// NewReader returns a reader over src. maxLine <= 0 selects
// DefaultMaxLineLength. malformed may be nil.
func NewReader(name string, src io.Reader, maxLine int, malformed MalformedHandler) *Reader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &Reader{name: name, src: src, maxLine: maxLine, malformed: malformed}
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// Run reads until EOF, the context is done or h fails. Lines longer than the
// limit and unparsable point lines abort with *LineError.
func (r *Reader) Run(ctx context.Context, h PointHandler) error {
	scanner := bufio.NewScanner(countingReader{r: r.src, n: &r.bytesRead})
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var tok Tokenizer
	var lineNo int64
	for scanner.Scan() {
		lineNo++
		r.linesRead.Add(1)
		if lineNo&0x3fff == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		line := scanner.Text()
		if len(line) > r.maxLine {
			return &LineError{Input: r.name, LineNo: lineNo, Line: truncate(line), Err: ErrLineTooLong}
		}

		p, disp, err := tok.Parse(line)
		if err != nil {
			return &LineError{Input: r.name, LineNo: lineNo, Line: line, Err: err}
		}
		switch disp {
		case LineSkip:
			r.skipped.Add(1)
			continue
		case LineMalformed:
			r.dropped.Add(1)
			if r.malformed != nil {
				r.malformed.HandleMalformed(r.name, lineNo, line)
			}
			continue
		}

		r.points.Add(1)
		if err := h.HandlePoint(&p); err != nil {
			return &LineError{Input: r.name, LineNo: lineNo, Line: line, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return &LineError{Input: r.name, LineNo: lineNo + 1, Err: ErrLineTooLong}
		}
		return fmt.Errorf("reading %s: %w", r.name, err)
	}
	return ctx.Err()
}

func truncate(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// Stats is a snapshot of reader progress.
type Stats struct {
	BytesRead int64
	LinesRead int64
	Points    int64
	Skipped   int64
	Malformed int64
}

// Stats returns current counters.
func (r *Reader) Stats() Stats {
	return Stats{
		BytesRead: r.bytesRead.Load(),
		LinesRead: r.linesRead.Load(),
		Points:    r.points.Load(),
		Skipped:   r.skipped.Load(),
		Malformed: r.dropped.Load(),
	}
}
