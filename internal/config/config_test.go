package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Defaults()
	if cfg.BlockSize != def.BlockSize || cfg.TupleSize != def.TupleSize {
		t.Fatalf("got %+v, want defaults", cfg)
	}
	if !cfg.CompressEnabled() {
		t.Error("compression should default to on")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "storePath: /data/bc\nblockSize: 4096\ntupleSize: 4\ncompress: false\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorePath != "/data/bc" {
		t.Errorf("storePath = %q", cfg.StorePath)
	}
	if cfg.BlockSize != 4096 {
		t.Errorf("blockSize = %d", cfg.BlockSize)
	}
	if cfg.TupleSize != 4 {
		t.Errorf("tupleSize = %d", cfg.TupleSize)
	}
	if cfg.CompressEnabled() {
		t.Error("compress: false in the file must win over the default")
	}
	if cfg.ParityShards != Defaults().ParityShards {
		t.Errorf("parityShards = %d, want default", cfg.ParityShards)
	}
}

func TestLoadRejectsMalformedYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
