package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies an input encoding.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Sniff detects the compression of a stream from its first bytes.
func Sniff(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, magicGzip):
		return CompressionGzip
	case bytes.HasPrefix(head, magicZstd):
		return CompressionZstd
	case bytes.HasPrefix(head, magicLZ4):
		return CompressionLZ4
	}
	return CompressionNone
}

// Input is an opened, decompressing export.
type Input struct {
	Name        string
	Compression Compression

	r       io.Reader
	closers []func() error
}

// Read implements io.Reader over the decompressed bytes.
func (in *Input) Read(p []byte) (int, error) { return in.r.Read(p) }

// Close releases the decoder and the underlying file.
func (in *Input) Close() error {
	var first error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	in.closers = nil
	return first
}

// OpenInput opens path, or stdin for "-", and wraps it in a decoder chosen
// from the stream's magic bytes.
func OpenInput(path string) (*Input, error) {
	if path == "-" {
		return NewInput("stdin", io.NopCloser(os.Stdin))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	in, err := NewInput(path, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return in, nil
}

// NewInput wraps rc in a decoder chosen from its magic bytes. Closing the
// Input closes rc.
func NewInput(name string, rc io.ReadCloser) (*Input, error) {
	br := bufio.NewReaderSize(rc, 256*1024)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	in := &Input{Name: name, Compression: Sniff(head), closers: []func() error{rc.Close}}
	switch in.Compression {
	case CompressionGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip %s: %w", name, err)
		}
		in.r = zr
		in.closers = append(in.closers, zr.Close)
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening zstd %s: %w", name, err)
		}
		in.r = zr
		in.closers = append(in.closers, func() error { zr.Close(); return nil })
	case CompressionLZ4:
		in.r = lz4.NewReader(br)
	default:
		in.r = br
	}
	return in, nil
}
