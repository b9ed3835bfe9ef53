// Package chunker splits a payload stream into fixed capacity chunks
// ready for per-block encryption.
package chunker

import (
	"io"

	boxochunker "github.com/ipfs/boxo/chunker"
)

// Chunker yields consecutive chunks of a stream. Next returns io.EOF
// when the stream is exhausted.
type Chunker interface {
	Next() ([]byte, error)
}

// New returns a fixed-size chunker. Every chunk except possibly the
// last has exactly capacity bytes.
func New(r io.Reader, capacity int64) Chunker {
	return &splitterChunker{
		splitter: boxochunker.NewSizeSplitter(r, capacity),
	}
}

type splitterChunker struct {
	splitter boxochunker.Splitter
}

func (c *splitterChunker) Next() ([]byte, error) {
	return c.splitter.NextBytes()
}

// Padded wraps a chunker so every chunk, including the last, has
// exactly capacity bytes; short chunks are zero filled.
func Padded(inner Chunker, capacity int) Chunker {
	return &paddedChunker{inner: inner, capacity: capacity}
}

type paddedChunker struct {
	inner    Chunker
	capacity int
}

func (c *paddedChunker) Next() ([]byte, error) {
	chunk, err := c.inner.Next()
	if err != nil {
		return nil, err
	}
	if len(chunk) < c.capacity {
		padded := make([]byte, c.capacity)
		copy(padded, chunk)
		chunk = padded
	}
	return chunk, nil
}
