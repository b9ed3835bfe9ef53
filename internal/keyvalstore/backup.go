package keyvalstore

import (
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// Backup streams a full badger backup, xz-compressed, to w.
func (s *Store) Backup(w io.Writer) error {
	xzw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("keyvalstore: starting xz stream: %w", err)
	}

	if _, err := s.db.Backup(xzw, 0); err != nil {
		return fmt.Errorf("keyvalstore: streaming backup: %w", err)
	}

	if err := xzw.Close(); err != nil {
		return fmt.Errorf("keyvalstore: finishing xz stream: %w", err)
	}
	return nil
}

// Restore loads an xz-compressed badger backup into the store. The
// store must be otherwise idle while the restore runs.
func (s *Store) Restore(r io.Reader) error {
	xzr, err := xz.NewReader(r)
	if err != nil {
		return fmt.Errorf("keyvalstore: opening xz stream: %w", err)
	}

	if err := s.db.Load(xzr, 16); err != nil {
		return fmt.Errorf("keyvalstore: loading backup: %w", err)
	}
	return nil
}
