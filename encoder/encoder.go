// Package encoder turns store records into file payloads for object storage.
package encoder

import "context"

// Encoder converts a slice of typed rows into a binary payload.
//
// Implementations must be safe for concurrent use unless documented otherwise.
type Encoder[T any] interface {
	Encode(ctx context.Context, items []T) ([]byte, error)
	FileExtension() string
	ContentType() string
}
