package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/brightchain/brightchain-go"
	"github.com/brightchain/brightchain-go/internal/config"
	"github.com/brightchain/brightchain-go/pkg/block"
	"github.com/brightchain/brightchain-go/pkg/ecies"
	"github.com/brightchain/brightchain-go/pkg/logging"
	"github.com/brightchain/brightchain-go/pkg/member"
)

func usage() {
	fmt.Println("Usage: brightchain <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  keygen                       generate a mnemonic and print it")
	fmt.Println("  store <file>                 store a file, print its magnet link")
	fmt.Println("  retrieve <magnet> <output>   retrieve a file by magnet link")
	fmt.Println("  info <magnet>                show file metadata without content")
	fmt.Println("  backup <file>                write a store snapshot")
	fmt.Println("  restore <file>               load a store snapshot")
	os.Exit(1)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		fatal("Error loading config: %v", err)
	}

	if os.Args[1] == "keygen" {
		keygen()
		return
	}

	engine := openEngine(cfg)
	ctx := context.Background()
	defer engine.Close(ctx)

	switch os.Args[1] {
	case "store":
		cmd := flag.NewFlagSet("store", flag.ExitOnError)
		cmd.Parse(os.Args[2:])
		if cmd.NArg() < 1 {
			fatal("Usage: brightchain store <file>")
		}
		storeFile(ctx, engine, cmd.Arg(0))
	case "retrieve":
		cmd := flag.NewFlagSet("retrieve", flag.ExitOnError)
		cmd.Parse(os.Args[2:])
		if cmd.NArg() < 2 {
			fatal("Usage: brightchain retrieve <magnet> <output-file>")
		}
		retrieveFile(ctx, engine, cmd.Arg(0), cmd.Arg(1))
	case "info":
		cmd := flag.NewFlagSet("info", flag.ExitOnError)
		cmd.Parse(os.Args[2:])
		if cmd.NArg() < 1 {
			fatal("Usage: brightchain info <magnet>")
		}
		showInfo(ctx, engine, cmd.Arg(0))
	case "backup":
		cmd := flag.NewFlagSet("backup", flag.ExitOnError)
		cmd.Parse(os.Args[2:])
		if cmd.NArg() < 1 {
			fatal("Usage: brightchain backup <file>")
		}
		backupStore(ctx, engine, cmd.Arg(0))
	case "restore":
		cmd := flag.NewFlagSet("restore", flag.ExitOnError)
		cmd.Parse(os.Args[2:])
		if cmd.NArg() < 1 {
			fatal("Usage: brightchain restore <file>")
		}
		restoreStore(ctx, engine, cmd.Arg(0))
	default:
		usage()
	}
}

func configPath() string {
	if p := os.Getenv("BRIGHTCHAIN_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "brightchain.yaml"
	}
	return filepath.Join(home, ".brightchain", "config.yaml")
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openEngine(cfg config.File) *brightchain.Engine {
	size, err := block.ParseSize(cfg.BlockSize)
	if err != nil {
		fatal("Invalid block size %d: %v", cfg.BlockSize, err)
	}

	engine, err := brightchain.New(brightchain.Config{
		Paths:         []string{cfg.StorePath},
		MinimumFreeGB: cfg.MinimumFreeGB,
		BlockSize:     size,
		TupleSize:     cfg.TupleSize,
		ParityShards:  cfg.ParityShards,
		Compress:      cfg.CompressEnabled(),
		Logger:        logging.New(logLevel(cfg.LogLevel)),
	})
	if err != nil {
		fatal("Error initializing engine: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		fatal("Error starting engine: %v", err)
	}
	return engine
}

func keygen() {
	svc := ecies.NewService()
	m, mnemonic, err := member.Random(svc)
	if err != nil {
		fatal("Error generating key: %v", err)
	}
	defer m.Dispose()
	defer mnemonic.Dispose()

	err = mnemonic.Use(func(phrase string) error {
		fmt.Println("Member ID: ", m.ID)
		fmt.Println("Mnemonic:  ", phrase)
		fmt.Println()
		fmt.Println("Store the mnemonic safely; it is the only way to recreate the key.")
		fmt.Println("Export it as BRIGHTCHAIN_MNEMONIC for store and retrieve commands.")
		return nil
	})
	if err != nil {
		fatal("Error reading mnemonic: %v", err)
	}
}

func loadMember() *member.Member {
	phrase := os.Getenv("BRIGHTCHAIN_MNEMONIC")
	if phrase == "" {
		fatal("BRIGHTCHAIN_MNEMONIC is not set; run 'brightchain keygen' first")
	}
	m, err := member.NewFromMnemonic(ecies.NewService(), phrase)
	if err != nil {
		fatal("Error deriving key from mnemonic: %v", err)
	}
	return m
}

func storeFile(ctx context.Context, engine *brightchain.Engine, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		fatal("Error reading %s: %v", path, err)
	}

	m := loadMember()
	defer m.Dispose()

	res, err := engine.StoreData(ctx, content, m, nil, brightchain.StoreOptions{
		Filename: filepath.Base(path),
		MimeType: mime.TypeByExtension(filepath.Ext(path)),
	})
	if err != nil {
		fatal("Error storing file: %v", err)
	}

	fmt.Printf("Stored %s (%d bytes, %d blocks)\n", filepath.Base(path), len(content), res.Blocks)
	fmt.Println(res.Magnet)
}

func retrieveFile(ctx context.Context, engine *brightchain.Engine, magnet, output string) {
	m := loadMember()
	defer m.Dispose()

	content, info, err := engine.RetrieveData(ctx, magnet, m)
	if err != nil {
		fatal("Error retrieving file: %v", err)
	}

	if err := os.WriteFile(output, content, 0o600); err != nil {
		fatal("Error writing %s: %v", output, err)
	}
	fmt.Printf("Retrieved %d bytes to %s\n", len(content), output)
	if info.Filename != "" {
		fmt.Printf("Original filename: %s\n", info.Filename)
	}
}

func showInfo(ctx context.Context, engine *brightchain.Engine, magnet string) {
	m := loadMember()
	defer m.Dispose()

	_, info, err := engine.RetrieveData(ctx, magnet, m)
	if err != nil {
		fatal("Error resolving magnet: %v", err)
	}

	fmt.Println("File information:")
	fmt.Printf("  Creator:  %s\n", info.CreatorID)
	fmt.Printf("  Created:  %s\n", info.CreatedAt)
	fmt.Printf("  Filename: %s\n", info.Filename)
	fmt.Printf("  MIME:     %s\n", info.MimeType)
	fmt.Printf("  Size:     %d bytes\n", info.Size)
}

func backupStore(ctx context.Context, engine *brightchain.Engine, path string) {
	f, err := os.Create(path)
	if err != nil {
		fatal("Error creating %s: %v", path, err)
	}
	defer f.Close()

	if err := engine.Backup(ctx, f); err != nil {
		fatal("Error writing backup: %v", err)
	}
	fmt.Printf("Backup written to %s\n", path)
}

func restoreStore(ctx context.Context, engine *brightchain.Engine, path string) {
	f, err := os.Open(path)
	if err != nil {
		fatal("Error opening %s: %v", path, err)
	}
	defer f.Close()

	if err := engine.Restore(ctx, f); err != nil {
		fatal("Error restoring backup: %v", err)
	}
	fmt.Printf("Store restored from %s\n", path)
}
