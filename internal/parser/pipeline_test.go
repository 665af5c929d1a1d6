package parser

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type collectingHandler struct {
	points []Point
	failAt int
}

func (h *collectingHandler) HandlePoint(p *Point) error {
	if h.failAt > 0 && len(h.points)+1 == h.failAt {
		return errors.New("handler failed")
	}
	cp := *p
	cp.Tags = append([]string(nil), p.Tags...)
	h.points = append(h.points, cp)
	return nil
}

type malformedLog struct {
	lines []int64
}

func (m *malformedLog) HandleMalformed(_ string, lineNo int64, _ string) {
	m.lines = append(m.lines, lineNo)
}

const sampleExport = `# DDL
CREATE DATABASE puffer WITH NAME autogen
# DML

client_buffer,channel=abc,server_id=1 buffer=3.5 1000
client_buffer,channel=abc,server_id=1 cum_rebuf=0.1 1000
oops only-two
video_sent,channel=abc,server_id=1 size=100i 2000
`

// =============================================================================
// Reader
// =============================================================================

func TestReader_Run(t *testing.T) {
	h := &collectingHandler{}
	m := &malformedLog{}
	r := NewReader("sample", strings.NewReader(sampleExport), 0, m)

	if err := r.Run(context.Background(), h); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(h.points) != 3 {
		t.Fatalf("points = %d, want 3", len(h.points))
	}
	if h.points[2].Measurement != "video_sent" || h.points[2].Value != "100i" {
		t.Errorf("last point = %+v", h.points[2])
	}
	if len(m.lines) != 1 || m.lines[0] != 7 {
		t.Errorf("malformed lines = %v, want [7]", m.lines)
	}

	st := r.Stats()
	if st.LinesRead != 8 || st.Points != 3 || st.Skipped != 4 || st.Malformed != 1 {
		t.Errorf("Stats() = %+v", st)
	}
	if st.BytesRead != int64(len(sampleExport)) {
		t.Errorf("BytesRead = %d, want %d", st.BytesRead, len(sampleExport))
	}
}

func TestReader_LineTooLong(t *testing.T) {
	long := "client_buffer,server_id=1 user=\"" + strings.Repeat("x", 300) + "\" 1\n"
	r := NewReader("long", strings.NewReader("# ok\n"+long), 255, nil)

	err := r.Run(context.Background(), &collectingHandler{})
	var le *LineError
	if !errors.As(err, &le) {
		t.Fatalf("error = %v, want *LineError", err)
	}
	if !errors.Is(err, ErrLineTooLong) || le.LineNo != 2 {
		t.Errorf("error = %v at line %d", err, le.LineNo)
	}
}

func TestReader_HandlerErrorHasLocation(t *testing.T) {
	r := NewReader("sample", strings.NewReader(sampleExport), 0, nil)
	err := r.Run(context.Background(), &collectingHandler{failAt: 2})

	var le *LineError
	if !errors.As(err, &le) {
		t.Fatalf("error = %v, want *LineError", err)
	}
	if le.LineNo != 6 || le.Input != "sample" {
		t.Errorf("location = %s:%d, want sample:6", le.Input, le.LineNo)
	}
}

func TestReader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewReader("empty", strings.NewReader(""), 0, nil)
	if err := r.Run(ctx, &collectingHandler{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Input decoding
// =============================================================================

func compress(t *testing.T, c Compression, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch c {
	case CompressionGzip:
		w = gzip.NewWriter(&buf)
	case CompressionZstd:
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			t.Fatal(err)
		}
		w = zw
	case CompressionLZ4:
		w = lz4.NewWriter(&buf)
	default:
		return data
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestOpenInput_Compressions(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionZstd, CompressionLZ4} {
		t.Run(string(c), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "export")
			if err := os.WriteFile(path, compress(t, c, []byte(sampleExport)), 0o644); err != nil {
				t.Fatal(err)
			}

			in, err := OpenInput(path)
			if err != nil {
				t.Fatalf("OpenInput() error: %v", err)
			}
			defer in.Close()

			if in.Compression != c {
				t.Errorf("Compression = %s, want %s", in.Compression, c)
			}
			got, err := io.ReadAll(in)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != sampleExport {
				t.Errorf("decoded %d bytes, want %d", len(got), len(sampleExport))
			}
		})
	}
}

func TestOpenInput_Missing(t *testing.T) {
	if _, err := OpenInput(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestNewInput_ShortStream(t *testing.T) {
	in, err := NewInput("short", io.NopCloser(strings.NewReader("a")))
	if err != nil {
		t.Fatal(err)
	}
	if in.Compression != CompressionNone {
		t.Errorf("Compression = %s", in.Compression)
	}
	got, _ := io.ReadAll(in)
	if string(got) != "a" {
		t.Errorf("got %q", got)
	}
}
