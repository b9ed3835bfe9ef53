package chunker

import (
	"bytes"
	"io"
	"testing"
)

func collect(t *testing.T, c Chunker) [][]byte {
	t.Helper()
	var chunks [][]byte
	for {
		chunk, err := c.Next()
		if err == io.EOF {
			return chunks
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		chunks = append(chunks, chunk)
	}
}

func TestFixedSizeSplit(t *testing.T) {
	data := bytes.Repeat([]byte{0xaa}, 10)
	chunks := collect(t, New(bytes.NewReader(data), 4))

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 4 || len(chunks[1]) != 4 || len(chunks[2]) != 2 {
		t.Fatalf("chunk lengths %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestPaddedSplit(t *testing.T) {
	data := []byte("hello world")
	chunks := collect(t, Padded(New(bytes.NewReader(data), 8), 8))

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) != 8 {
			t.Errorf("chunk %d has %d bytes, want 8", i, len(chunk))
		}
	}
	joined := append(append([]byte{}, chunks[0]...), chunks[1]...)
	if !bytes.Equal(joined[:len(data)], data) {
		t.Error("padded chunks do not reassemble the input")
	}
	for _, b := range joined[len(data):] {
		if b != 0 {
			t.Fatal("padding must be zero")
		}
	}
}
