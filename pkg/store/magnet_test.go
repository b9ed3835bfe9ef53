package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightchain/brightchain-go/pkg/block"
	"github.com/brightchain/brightchain-go/pkg/checksum"
)

func TestMagnetRoundTrip(t *testing.T) {
	cs := checksum.Calculate([]byte("some cbl header"))
	uri := MagnetURI(cs, block.SizeMedium)

	gotCs, gotSize, err := ParseMagnetURI(uri)
	require.NoError(t, err)
	assert.Equal(t, cs, gotCs)
	assert.Equal(t, block.SizeMedium, gotSize)
}

func TestParseMagnetURIErrors(t *testing.T) {
	cs := checksum.Calculate([]byte("x"))

	_, _, err := ParseMagnetURI("https://example.com/?xt=" + magnetTopic)
	assert.ErrorIs(t, err, ErrInvalidMagnetURL)

	_, _, err = ParseMagnetURI("magnet:?xt=urn:btih:deadbeef&xs=" + cs.String() + "&bs=4096")
	assert.ErrorIs(t, err, ErrInvalidMagnetURLXT)

	_, _, err = ParseMagnetURI("magnet:?xt=" + magnetTopic + "&bs=4096")
	assert.ErrorIs(t, err, ErrMagnetMissingParameter)

	_, _, err = ParseMagnetURI("magnet:?xt=" + magnetTopic + "&xs=" + cs.String())
	assert.ErrorIs(t, err, ErrMagnetMissingParameter)

	_, _, err = ParseMagnetURI("magnet:?xt=" + magnetTopic + "&xs=" + cs.String() + "&bs=777")
	assert.ErrorIs(t, err, ErrInvalidMagnetBlockSize)

	_, _, err = ParseMagnetURI("magnet:?xt=" + magnetTopic + "&xs=nothex&bs=4096")
	assert.ErrorIs(t, err, ErrInvalidMagnetURL)
}
