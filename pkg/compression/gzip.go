// Package compression implements the AS4 GZIP payload compression feature
package compression

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// CompressionTypeGzip is the PartProperty value announcing GZIP compression
	CompressionTypeGzip = "application/gzip"

	// DefaultMaxDecompressedSize bounds the inflated size of a single payload.
	DefaultMaxDecompressedSize = 64 << 20
)

// ErrDecompressionFailure is returned when a payload cannot be inflated or
// exceeds the configured size limit. Receivers report it as EBMS:0303.
var ErrDecompressionFailure = errors.New("decompression failure")

// Compressor handles payload compression
type Compressor struct {
	compressionLevel int
	maxSize          int64
}

// NewCompressor creates a new compressor with default compression level
func NewCompressor() *Compressor {
	return NewCompressorWithLevel(gzip.DefaultCompression)
}

// NewCompressorWithLevel creates a new compressor with specified compression level
func NewCompressorWithLevel(level int) *Compressor {
	return &Compressor{
		compressionLevel: level,
		maxSize:          DefaultMaxDecompressedSize,
	}
}

// WithMaxDecompressedSize overrides the inflated size limit.
func (c *Compressor) WithMaxDecompressedSize(n int64) *Compressor {
	c.maxSize = n
	return c
}

// Compress compresses data using GZIP
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := gzip.NewWriterLevel(&buf, c.compressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress decompresses GZIP data
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailure, err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(reader, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailure, err)
	}
	if n > c.maxSize {
		return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrDecompressionFailure, c.maxSize)
	}

	return buf.Bytes(), nil
}

// ShouldCompress determines if payload should be compressed based on content type
func ShouldCompress(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(strings.ToLower(mediaType)) {
	case "application/gzip", "application/zip", "application/x-gzip",
		"image/jpeg", "image/png", "video/mp4", "audio/mp3":
		return false
	}
	return true
}
