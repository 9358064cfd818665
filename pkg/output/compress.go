package output

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"strings"

	"github.com/andybalholm/brotli"
)

// Compression is a transform applied to the serialized batch before the
// file write. Selection is configuration-driven and orthogonal to locking.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionGzip   Compression = "gzip"
	CompressionBrotli Compression = "brotli"
)

// ParseCompression validates a configured compression string
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(s)) {
	case CompressionNone, "":
		return CompressionNone, nil
	case CompressionGzip:
		return CompressionGzip, nil
	case CompressionBrotli:
		return CompressionBrotli, nil
	default:
		return "", fmt.Errorf("unknown compression: %s", s)
	}
}

// transform compresses one batch. Each batch becomes a self-contained
// compressed member, so appended batches decode as a continuous stream.
func transform(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("gzip write failed: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip close failed: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionBrotli:
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		if _, err := bw.Write(data); err != nil {
			return nil, fmt.Errorf("brotli write failed: %w", err)
		}
		if err := bw.Close(); err != nil {
			return nil, fmt.Errorf("brotli close failed: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return data, nil
	}
}
