package encoder

import (
	"bytes"
	"context"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

type Compression string

const (
	CompressionNone   Compression = ""
	CompressionSnappy Compression = "snappy"
	CompressionGzip   Compression = "gzip"
	CompressionZstd   Compression = "zstd"
)

// ParseCompression accepts the config spellings, including "none".
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(s); c {
	case "none":
		return CompressionNone, nil
	case CompressionNone, CompressionSnappy, CompressionGzip, CompressionZstd:
		return c, nil
	default:
		return "", fmt.Errorf("unsupported parquet compression: %q", s)
	}
}

// Parquet writes rows of T as one parquet file. Column names come from the
// `parquet` struct tags of T.
type Parquet[T any] struct {
	Compression Compression
}

func (e Parquet[T]) FileExtension() string { return ".parquet" }

func (e Parquet[T]) ContentType() string { return "application/vnd.apache.parquet" }

func (e Parquet[T]) Encode(ctx context.Context, items []T) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var options []parquet.WriterOption
	switch e.Compression {
	case CompressionNone:
	case CompressionSnappy:
		options = append(options, parquet.Compression(&parquet.Snappy))
	case CompressionGzip:
		options = append(options, parquet.Compression(&parquet.Gzip))
	case CompressionZstd:
		options = append(options, parquet.Compression(&parquet.Zstd))
	default:
		return nil, fmt.Errorf("unsupported parquet compression: %q", e.Compression)
	}

	var out bytes.Buffer
	w := parquet.NewGenericWriter[T](&out, options...)
	if _, err := w.Write(items); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
