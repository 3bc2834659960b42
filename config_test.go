package ticketregistry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticketregistry.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
registry: memcached
codec: cbor
memcached:
  servers: ["cache-1:11211", "cache-2:11211"]
  timeout: 250ms
  max_idle_conns: 8
`)
	t.Setenv("TICKET_REGISTRY_MEMCACHED_SERVERS", "cache-3:11211,cache-4:11211")
	t.Setenv("TICKET_REGISTRY_GRPC_ADDR", ":7070")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	want := DefaultConfig()
	want.Codec = "cbor"
	want.GRPCAddr = ":7070"
	want.Memcached = MemcachedConfig{
		Servers:      []string{"cache-3:11211", "cache-4:11211"},
		Timeout:      250 * time.Millisecond,
		MaxIdleConns: 8,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "registy: memory\n")); err == nil {
		t.Fatal("expected error for misspelled field")
	}
}

func TestConfigNewRegistry(t *testing.T) {
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Registry = RegistryMemory
	r, err := cfg.NewRegistry(ctx)
	if err != nil {
		t.Fatalf("memory registry: %v", err)
	}
	if _, ok := r.(*MemoryRegistry); !ok {
		t.Fatalf("got %T, want *MemoryRegistry", r)
	}

	cfg = DefaultConfig()
	cfg.Registry = RegistrySQL
	cfg.SQL.DSN = "file:" + filepath.Join(t.TempDir(), "tickets.db")
	cfg.CipherKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	r, err = cfg.NewRegistry(ctx)
	if err != nil {
		t.Fatalf("sql registry: %v", err)
	}
	defer r.Shutdown()
	if got := r.AddTicket(ctx, NewTicket("TGT-1", "casuser", 60)); got != OutcomeSuccess {
		t.Fatalf("add = %v, want success", got)
	}

	cfg = DefaultConfig()
	r, err = cfg.NewRegistry(ctx)
	if err != nil {
		t.Fatalf("memcached registry: %v", err)
	}
	if _, ok := r.(*MemcachedRegistry); !ok {
		t.Fatalf("got %T, want *MemcachedRegistry", r)
	}

	for _, bad := range []func(*Config){
		func(c *Config) { c.Registry = "redis" },
		func(c *Config) { c.Codec = "gob" },
		func(c *Config) { c.CipherKey = "not-hex" },
		func(c *Config) { c.CipherKey = "0102" },
		func(c *Config) { c.Memcached.Servers = nil },
	} {
		cfg := DefaultConfig()
		bad(cfg)
		if _, err := cfg.NewRegistry(ctx); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}
