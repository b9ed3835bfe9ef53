// Package brightchain is a content-addressed block store for
// encrypted, erasure-tolerant file storage. Files are compressed,
// split into fixed-size chunks, encrypted once for all recipients,
// whitened against random blocks and addressed through a signed
// constituent block list (CBL) shared as a magnet link.
package brightchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/brightchain/brightchain-go/internal/erasure"
	"github.com/brightchain/brightchain-go/internal/keyvalstore"
	"github.com/brightchain/brightchain-go/pkg/block"
	"github.com/brightchain/brightchain-go/pkg/cbl"
	"github.com/brightchain/brightchain-go/pkg/checksum"
	"github.com/brightchain/brightchain-go/pkg/ecies"
	"github.com/brightchain/brightchain-go/pkg/logging"
	"github.com/brightchain/brightchain-go/pkg/store"
	"github.com/brightchain/brightchain-go/pkg/tuple"
)

var (
	ErrNotStarted        = errors.New("brightchain: engine not started")
	ErrClosed            = errors.New("brightchain: engine closed")
	ErrBlockSizeTooSmall = errors.New("brightchain: block size leaves no payload capacity")
	ErrDataTooLarge      = errors.New("brightchain: data does not fit a single list hierarchy")
	ErrCorruptPayload    = errors.New("brightchain: reassembled payload is corrupt")
)

// streamPrefixLen is the length prefix in front of the payload stream,
// needed to strip chunk padding on reassembly.
const streamPrefixLen = 8

// Config configures the engine. Only Paths[0] is used at the moment;
// the slice keeps room for multi-volume layouts.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used.
	Paths []string
	// MinimumFreeGB is a free-space threshold for on-disk operations.
	MinimumFreeGB uint
	// BlockSize is the size class of every stored block. Zero means
	// SizeMedium.
	BlockSize block.Size
	// TupleSize is the whitening tuple width. Zero means the default.
	TupleSize int
	// ParityShards is the per-block forward error correction budget.
	// Zero means 2.
	ParityShards int
	// Compress enables transparent zstd compression of payloads.
	Compress bool
	// Logger is an optional structured logger. If nil, a stderr logger
	// is used.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.BlockSize == 0 {
		c.BlockSize = block.SizeMedium
	}
	if c.TupleSize == 0 {
		c.TupleSize = tuple.DefaultSize
	}
	if c.ParityShards == 0 {
		c.ParityShards = 2
	}
	if c.Logger == nil {
		c.Logger = logging.New(slog.LevelInfo)
	}
}

// StoreOptions carries optional per-file metadata.
type StoreOptions struct {
	Filename string
	MimeType string
}

// StoreResult describes a stored file.
type StoreResult struct {
	// Magnet is the shareable link to the file's block list.
	Magnet string
	// CBL is the checksum of the list block the magnet points at.
	CBL checksum.Checksum
	// Blocks is the number of blocks written, list blocks included.
	Blocks int
}

// FileInfo is the metadata recovered alongside a file.
type FileInfo struct {
	CreatorID uuid.UUID
	CreatedAt time.Time
	Filename  string
	MimeType  string
	Size      uint64
}

// Engine is the main handle. It owns the key-value store, the block
// store and the crypto services.
type Engine struct {
	log    *slog.Logger
	config Config

	eciesSvc *ecies.Service
	cblSvc   *cbl.Service
	fec      *erasure.Encoder
	tuples   *tuple.Service

	kvMu   sync.RWMutex
	kv     *keyvalstore.Store
	blocks *store.BlockStore

	zenc *zstd.Encoder
	zdec *zstd.Decoder

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New constructs an engine handle. New does not perform heavy I/O or
// start background work; call Start to open the store.
func New(conf Config) (*Engine, error) {
	if len(conf.Paths) == 0 {
		return nil, fmt.Errorf("brightchain: at least one path must be provided in config")
	}
	conf.applyDefaults()
	if !conf.BlockSize.Valid() {
		return nil, fmt.Errorf("%w: %d", block.ErrInvalidBlockSize, int64(conf.BlockSize))
	}

	fec := erasure.NewEncoder()
	tuples, err := tuple.NewService(conf.TupleSize, fec)
	if err != nil {
		return nil, err
	}

	eciesSvc := ecies.NewService()
	return &Engine{
		log:      conf.Logger,
		config:   conf,
		eciesSvc: eciesSvc,
		cblSvc:   cbl.NewService(eciesSvc),
		fec:      fec,
		tuples:   tuples,
	}, nil
}

// Start opens the on-disk store and marks the engine ready. Start is
// safe to call multiple times; only the first call has effect.
func (e *Engine) Start(ctx context.Context) error {
	var startErr error
	e.startOnce.Do(func() {
		if err := ctx.Err(); err != nil {
			startErr = err
			return
		}

		kv, err := keyvalstore.New(keyvalstore.StoreConfig{
			Paths:         []string{filepath.Join(e.config.Paths[0], "blocks")},
			MinimumFreeGB: int(e.config.MinimumFreeGB),
			Logger:        logging.NewStoreLogger(slog.LevelWarn),
		})
		if err != nil {
			startErr = fmt.Errorf("brightchain: opening store: %w", err)
			return
		}

		zenc, err := zstd.NewWriter(nil)
		if err != nil {
			startErr = fmt.Errorf("brightchain: initializing compressor: %w", err)
			return
		}
		zdec, err := zstd.NewReader(nil)
		if err != nil {
			startErr = fmt.Errorf("brightchain: initializing decompressor: %w", err)
			return
		}

		e.kvMu.Lock()
		e.kv = kv
		e.blocks = store.New(kv, e.tuples, logging.NewStoreLogger(slog.LevelWarn))
		e.kvMu.Unlock()
		e.zenc = zenc
		e.zdec = zdec

		e.started.Store(true)
		e.log.Info("engine started",
			"path", e.config.Paths[0],
			"block_size", e.config.BlockSize.String(),
			"tuple_size", e.config.TupleSize)
	})
	return startErr
}

// Run starts the engine, blocks until ctx is canceled and then shuts
// down with a bounded deadline. It is a convenience for services.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Close(shutdownCtx)
}

// Close releases all resources. Close is idempotent.
func (e *Engine) Close(ctx context.Context) error {
	var closeErr error
	e.closeOnce.Do(func() {
		e.kvMu.Lock()
		kv := e.kv
		e.kv = nil
		e.blocks = nil
		e.kvMu.Unlock()

		if kv != nil {
			if err := kv.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("brightchain: closing store: %w", err))
			}
		}
		if e.zenc != nil {
			closeErr = errors.Join(closeErr, e.zenc.Close())
		}
		if e.zdec != nil {
			e.zdec.Close()
		}
		e.log.Info("engine closed")
	})
	return closeErr
}

func (e *Engine) blockStore() (*store.BlockStore, error) {
	if !e.started.Load() {
		return nil, ErrNotStarted
	}
	e.kvMu.RLock()
	blocks := e.blocks
	e.kvMu.RUnlock()
	if blocks == nil {
		return nil, ErrClosed
	}
	return blocks, nil
}

// Backup streams a compressed snapshot of the whole store to w.
func (e *Engine) Backup(ctx context.Context, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := e.blockStore(); err != nil {
		return err
	}
	e.kvMu.RLock()
	kv := e.kv
	e.kvMu.RUnlock()
	if kv == nil {
		return ErrClosed
	}
	return kv.Backup(w)
}

// Restore loads a snapshot produced by Backup into the store.
func (e *Engine) Restore(ctx context.Context, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := e.blockStore(); err != nil {
		return err
	}
	e.kvMu.RLock()
	kv := e.kv
	e.kvMu.RUnlock()
	if kv == nil {
		return ErrClosed
	}
	return kv.Restore(r)
}
