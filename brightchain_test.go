package brightchain

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/brightchain/brightchain-go/internal/testutil"
	"github.com/brightchain/brightchain-go/pkg/block"
	"github.com/brightchain/brightchain-go/pkg/cbl"
	"github.com/brightchain/brightchain-go/pkg/ecies"
	"github.com/brightchain/brightchain-go/pkg/logging"
	"github.com/brightchain/brightchain-go/pkg/member"
)

func startEngine(t *testing.T, conf Config) *Engine {
	t.Helper()
	conf.Paths = []string{t.TempDir()}
	conf.Logger = logging.Discard()

	e, err := New(conf)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(func() { e.Close(context.Background()) })
	return e
}

func newMember(t *testing.T) *member.Member {
	t.Helper()
	m, mnemonic, err := member.Random(ecies.NewService())
	if err != nil {
		t.Fatalf("random member: %v", err)
	}
	mnemonic.Dispose()
	t.Cleanup(m.Dispose)
	return m
}

func TestStoreRetrieveRoundTrip(t *testing.T) {
	e := startEngine(t, Config{BlockSize: block.SizeSmall, TupleSize: 3})
	ctx := context.Background()

	creator := newMember(t)
	reader := newMember(t)

	content := make([]byte, 256)
	if _, err := rand.Read(content); err != nil {
		t.Fatal(err)
	}

	res, err := e.StoreData(ctx, content, creator, []*member.Member{creator, reader}, StoreOptions{
		Filename: "secret.bin",
		MimeType: "application/octet-stream",
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if res.Magnet == "" {
		t.Fatal("empty magnet link")
	}
	// One chunk: tuple plus ciphertext member plus the list block.
	if res.Blocks != 5 {
		t.Errorf("blocks = %d, want 5", res.Blocks)
	}

	for _, m := range []*member.Member{creator, reader} {
		got, info, err := e.RetrieveData(ctx, res.Magnet, m)
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Fatal("retrieved content differs")
		}
		if info.Filename != "secret.bin" {
			t.Errorf("filename = %q", info.Filename)
		}
		if info.CreatorID != creator.ID {
			t.Error("creator ID not preserved")
		}
		if info.Size != uint64(len(content)) {
			t.Errorf("size = %d", info.Size)
		}
	}
}

func TestRetrieveNonRecipient(t *testing.T) {
	e := startEngine(t, Config{BlockSize: block.SizeSmall})
	ctx := context.Background()

	creator := newMember(t)
	outsider := newMember(t)

	res, err := e.StoreData(ctx, []byte("for my eyes only"), creator, nil, StoreOptions{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	if _, _, err := e.RetrieveData(ctx, res.Magnet, outsider); !errors.Is(err, ecies.ErrRecipientNotFound) {
		t.Fatalf("got %v, want ErrRecipientNotFound", err)
	}

	pub := creator.Public()
	if _, _, err := e.RetrieveData(ctx, res.Magnet, pub); !errors.Is(err, member.ErrNoPrivateKey) {
		t.Fatalf("got %v, want ErrNoPrivateKey", err)
	}
}

func TestStoreCompressesCompressibleData(t *testing.T) {
	e := startEngine(t, Config{BlockSize: block.SizeSmall, Compress: true})
	ctx := context.Background()

	creator := newMember(t)
	content := bytes.Repeat([]byte("all work and no play makes jack a dull boy. "), 500)

	res, err := e.StoreData(ctx, content, creator, nil, StoreOptions{MimeType: "text/plain"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	// 22KB of repetitive text compresses into a single 4KiB chunk:
	// four tuple blocks plus the list block.
	if res.Blocks != 5 {
		t.Errorf("blocks = %d, want 5 after compression", res.Blocks)
	}

	got, info, err := e.RetrieveData(ctx, res.Magnet, creator)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("retrieved content differs")
	}
	if info.MimeType != "text/plain" {
		t.Errorf("mime type = %q, want %q preserved through compression", info.MimeType, "text/plain")
	}
}

func TestStoreRetrieveSuperCbl(t *testing.T) {
	e := startEngine(t, Config{BlockSize: block.SizeTiny, TupleSize: 3})
	ctx := context.Background()

	creator := newMember(t)
	content := make([]byte, 16<<10)
	if _, err := rand.Read(content); err != nil {
		t.Fatal(err)
	}

	res, err := e.StoreData(ctx, content, creator, nil, StoreOptions{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	rootBlock, err := e.blocks.Get(res.CBL)
	if err != nil {
		t.Fatalf("get root block: %v", err)
	}
	if !cbl.IsSuperCbl(rootBlock.Payload()) {
		t.Fatal("expected a SuperCBL root for 16KiB at the tiny block size")
	}

	got, info, err := e.RetrieveData(ctx, res.Magnet, creator)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("retrieved content differs")
	}
	if info.Size != uint64(len(content)) {
		t.Errorf("size = %d", info.Size)
	}
}

func TestRetrieveSurvivesBlockCorruption(t *testing.T) {
	e := startEngine(t, Config{BlockSize: block.SizeSmall, TupleSize: 3})
	ctx := context.Background()

	creator := newMember(t)
	content := make([]byte, 1000)
	if _, err := rand.Read(content); err != nil {
		t.Fatal(err)
	}

	res, err := e.StoreData(ctx, content, creator, nil, StoreOptions{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	// Corrupt the whitened block, the first address in the list.
	rootBlock, err := e.blocks.Get(res.CBL)
	if err != nil {
		t.Fatal(err)
	}
	h, err := e.cblSvc.ParseCbl(rootBlock.Payload())
	if err != nil {
		t.Fatal(err)
	}
	whitened := h.Addresses[0]
	garbage := make([]byte, block.SizeSmall)
	if err := e.kv.Write(append([]byte("b:"), whitened[:]...), garbage); err != nil {
		t.Fatal(err)
	}

	got, _, err := e.RetrieveData(ctx, res.Magnet, creator)
	if err != nil {
		t.Fatalf("retrieve after corruption: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("recovered content differs")
	}
}

func TestBackupRestore(t *testing.T) {
	src := startEngine(t, Config{BlockSize: block.SizeSmall})
	ctx := context.Background()

	creator := newMember(t)
	content := []byte("carried across the snapshot boundary")
	res, err := src.StoreData(ctx, content, creator, nil, StoreOptions{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	var snapshot bytes.Buffer
	if err := src.Backup(ctx, &snapshot); err != nil {
		t.Fatalf("backup: %v", err)
	}

	dst := startEngine(t, Config{BlockSize: block.SizeSmall})
	if err := dst.Restore(ctx, &snapshot); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, _, err := dst.RetrieveData(ctx, res.Magnet, creator)
	if err != nil {
		t.Fatalf("retrieve from restored store: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("restored content differs")
	}
}

func TestEngineLifecycle(t *testing.T) {
	e, err := New(Config{Paths: []string{t.TempDir()}, Logger: logging.Discard()})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.blockStore(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("got %v, want ErrNotStarted", err)
	}

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}

	if err := e.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := e.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}

	creator := newMember(t)
	if _, err := e.StoreData(ctx, []byte("x"), creator, nil, StoreOptions{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestNewRejectsMissingPath(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestStoreRetrieveLargePayload(t *testing.T) {
	testutil.RequireLong(t)

	e := startEngine(t, Config{BlockSize: block.SizeMedium, TupleSize: 3})
	ctx := context.Background()

	m := newMember(t)

	content := make([]byte, 64<<20)
	if _, err := rand.Read(content); err != nil {
		t.Fatal(err)
	}

	res, err := e.StoreData(ctx, content, m, []*member.Member{m}, StoreOptions{Filename: "big.bin"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	got, info, err := e.RetrieveData(ctx, res.Magnet, m)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("retrieved content differs from original")
	}
	if info.Size != uint64(len(content)) {
		t.Fatalf("got size %d, want %d", info.Size, len(content))
	}
}
