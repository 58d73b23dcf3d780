package adapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/btc-l2/anchorcore/pkg/errs"
)

func TestLoadConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "adapter.yaml")
	content := "endpoint: https://node.example\nnetwork_id: ethereum-mainnet\nread_only: true\nflags:\n  ws: wss://node.example/ws\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Endpoint != "https://node.example" || cfg.NetworkID != "ethereum-mainnet" || !cfg.ReadOnly {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Flags["ws"] != "wss://node.example/ws" {
		t.Fatalf("flags = %+v", cfg.Flags)
	}
}

func TestLoadConfigMissingFileReturnsNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/adapter.yaml")
	if !errs.Is(err, errs.NotFound) {
		t.Fatalf("err = %v, want NotFound for a missing file", err)
	}
}
