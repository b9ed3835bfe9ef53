package checksum

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/brightchain/brightchain-go/pkg/errcat"
)

func TestCalculateDeterministic(t *testing.T) {
	data := []byte("the same input hashes to the same digest")

	a := Calculate(data)
	b := Calculate(data)
	if !a.Equal(b) {
		t.Error("repeated Calculate over identical input differed")
	}

	if !Validate(data, a) {
		t.Error("Validate rejected the digest of its own input")
	}
	if Validate(append(data, 'x'), a) {
		t.Error("Validate accepted a digest of different input")
	}
}

func TestCalculateReaderMatchesCalculate(t *testing.T) {
	data := make([]byte, 1<<16)
	for i := range data {
		data[i] = byte(i % 251)
	}

	want := Calculate(data)
	got, err := CalculateReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("CalculateReader failed: %v", err)
	}
	if !want.Equal(got) {
		t.Error("streaming digest differs from one-shot digest")
	}
}

func TestHexRoundTrip(t *testing.T) {
	c := Calculate([]byte("round trip"))

	s := c.String()
	if len(s) != HexLength {
		t.Fatalf("hex form has length %d, want %d", len(s), HexLength)
	}
	if s != strings.ToLower(s) {
		t.Error("hex form is not lowercase")
	}

	parsed, err := FromHex(s)
	if err != nil {
		t.Fatalf("FromHex failed: %v", err)
	}
	if !parsed.Equal(c) {
		t.Error("hex round trip lost data")
	}
}

func TestFromHexErrors(t *testing.T) {
	_, err := FromHex("abcd")
	if !errors.Is(err, ErrInvalidHexStringLength) {
		t.Errorf("short string: got %v, want ErrInvalidHexStringLength", err)
	}

	bad := strings.Repeat("zz", Size)
	_, err = FromHex(bad)
	if !errors.Is(err, ErrInvalidHexString) {
		t.Errorf("non-hex string: got %v, want ErrInvalidHexString", err)
	}
	if !errcat.Is(err, errcat.Structural) {
		t.Errorf("hex errors should be structural, got %v", errcat.CategoryOf(err))
	}
}

func TestIsZero(t *testing.T) {
	var zero Checksum
	if !zero.IsZero() {
		t.Error("zero value not reported as zero")
	}
	if Calculate(nil).IsZero() {
		t.Error("digest of empty input reported as zero")
	}
}
