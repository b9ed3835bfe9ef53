package store

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/brightchain/brightchain-go/pkg/block"
	"github.com/brightchain/brightchain-go/pkg/checksum"
	"github.com/brightchain/brightchain-go/pkg/errcat"
)

const magnetTopic = "urn:brightchain:cbl"

var (
	ErrInvalidMagnetURL       = errcat.Sentinel(errcat.Structural, "store: not a magnet url")
	ErrInvalidMagnetURLXT     = errcat.Sentinel(errcat.Structural, "store: magnet url has wrong exact topic")
	ErrMagnetMissingParameter = errcat.Sentinel(errcat.Structural, "store: magnet url missing parameter")
	ErrInvalidMagnetBlockSize = errcat.Sentinel(errcat.Structural, "store: magnet url has invalid block size")
)

// MagnetURI renders the shareable link to a stored CBL: the header
// block's checksum plus the block size class of the payload blocks.
func MagnetURI(cbl checksum.Checksum, size block.Size) string {
	q := url.Values{}
	q.Set("xt", magnetTopic)
	q.Set("xs", cbl.String())
	q.Set("bs", strconv.FormatInt(int64(size), 10))
	return "magnet:?" + q.Encode()
}

// ParseMagnetURI extracts the CBL checksum and the block size from a
// magnet link produced by MagnetURI.
func ParseMagnetURI(raw string) (checksum.Checksum, block.Size, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return checksum.Checksum{}, 0, fmt.Errorf("%w: %v", ErrInvalidMagnetURL, err)
	}
	if u.Scheme != "magnet" {
		return checksum.Checksum{}, 0, fmt.Errorf("%w: scheme %q", ErrInvalidMagnetURL, u.Scheme)
	}

	q := u.Query()
	if q.Get("xt") != magnetTopic {
		return checksum.Checksum{}, 0, fmt.Errorf("%w: %q", ErrInvalidMagnetURLXT, q.Get("xt"))
	}

	xs := q.Get("xs")
	if xs == "" {
		return checksum.Checksum{}, 0, fmt.Errorf("%w: xs", ErrMagnetMissingParameter)
	}
	cs, err := checksum.FromHex(xs)
	if err != nil {
		return checksum.Checksum{}, 0, fmt.Errorf("%w: %v", ErrInvalidMagnetURL, err)
	}

	bs := q.Get("bs")
	if bs == "" {
		return checksum.Checksum{}, 0, fmt.Errorf("%w: bs", ErrMagnetMissingParameter)
	}
	n, err := strconv.ParseInt(bs, 10, 64)
	if err != nil {
		return checksum.Checksum{}, 0, fmt.Errorf("%w: %q", ErrInvalidMagnetBlockSize, bs)
	}
	size, err := block.ParseSize(n)
	if err != nil {
		return checksum.Checksum{}, 0, fmt.Errorf("%w: %d", ErrInvalidMagnetBlockSize, n)
	}

	return cs, size, nil
}
