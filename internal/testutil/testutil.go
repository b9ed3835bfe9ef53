// Package testutil holds shared helpers for tests.
package testutil

import (
	"flag"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/brightchain/brightchain-go/internal/keyvalstore"
)

var RunLong = flag.Bool("long", false, "run long/heavy tests")

func RequireLong(t *testing.T) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}

func IsLongEnabled() bool {
	return *RunLong
}

// QuietLogger returns a logrus logger that discards all output so that
// store internals stay silent during tests.
func QuietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// TempStore opens a key-value store under a per-test temp directory
// and closes it when the test ends.
func TempStore(t *testing.T) *keyvalstore.Store {
	t.Helper()
	s, err := keyvalstore.New(keyvalstore.StoreConfig{
		Paths:  []string{t.TempDir()},
		Logger: QuietLogger(),
	})
	if err != nil {
		t.Fatalf("opening temp store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Logf("closing temp store: %v", err)
		}
	})
	return s
}
