package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tliron/commonlog"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[runtime]
max-frames = 256
initial-locals = 128
max-locals = 4096
profile = true

[cache]
enabled = false
size = 64
max-probe = 4

[scheduler]
workers = 2
quantum-ms = 5

[journal]
path = "fibers.db"

[server]
address = "127.0.0.1:7070"
http-address = "127.0.0.1:7071"

[logging]
verbosity = 2
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Runtime.MaxFrames != 256 {
		t.Errorf("max-frames = %d, want 256", c.Runtime.MaxFrames)
	}
	if !c.Runtime.Profile {
		t.Error("profile = false, want true")
	}
	if c.Cache.Enabled {
		t.Error("cache enabled = true, want false")
	}
	if c.Cache.Size != 64 || c.Cache.MaxProbe != 4 {
		t.Errorf("cache = %+v", c.Cache)
	}
	if c.Scheduler.Workers != 2 || c.Quantum() != 5*time.Millisecond {
		t.Errorf("scheduler = %+v", c.Scheduler)
	}
	if c.Server.Address != "127.0.0.1:7070" || c.Server.HTTPAddress != "127.0.0.1:7071" {
		t.Errorf("server = %+v", c.Server)
	}
	if c.JournalPath() != filepath.Join(c.Dir, "fibers.db") {
		t.Errorf("journal path = %q", c.JournalPath())
	}
	if c.MaxLevel() != commonlog.Debug {
		t.Errorf("max level = %v, want debug", c.MaxLevel())
	}

	opts := c.RuntimeOptions()
	if opts.MaxFrames != 256 || opts.InitialLocals != 128 || opts.MaxLocals != 4096 {
		t.Errorf("runtime options = %+v", opts)
	}
	if !opts.DisableCache || opts.CacheSize != 64 || opts.MaxProbe != 4 || !opts.Profile {
		t.Errorf("cache options = %+v", opts)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[scheduler]
workers = 8
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	def := Default()
	if c.Scheduler.Workers != 8 {
		t.Errorf("workers = %d, want 8", c.Scheduler.Workers)
	}
	if c.Runtime != def.Runtime || c.Cache != def.Cache {
		t.Errorf("runtime/cache = %+v %+v, want defaults", c.Runtime, c.Cache)
	}
	if c.Scheduler.QuantumMs != def.Scheduler.QuantumMs {
		t.Errorf("quantum-ms = %d, want default", c.Scheduler.QuantumMs)
	}
	if c.JournalPath() != "" {
		t.Errorf("journal path = %q, want disabled", c.JournalPath())
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"zero frames", "[runtime]\nmax-frames = 0\n", "maxFrames"},
		{"locals below initial", "[runtime]\ninitial-locals = 100\nmax-locals = 10\n", "maxLocals"},
		{"probe past size", "[cache]\nsize = 4\nmax-probe = 4\n", "maxProbe"},
		{"no workers", "[scheduler]\nworkers = 0\n", "workers"},
		{"verbosity", "[logging]\nverbosity = 9\n", "verbosity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestParseRejectsUnknownKey(t *testing.T) {
	_, err := Parse([]byte("[cache]\nsise = 8\n"))
	if err == nil || !strings.Contains(err.Error(), "sise") {
		t.Errorf("err = %v, want unknown key sise", err)
	}
}

func TestParseSyntaxError(t *testing.T) {
	if _, err := Parse([]byte("[runtime\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[scheduler]\nworkers = 3\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c.Scheduler.Workers != 3 {
		t.Errorf("workers = %d, want 3", c.Scheduler.Workers)
	}
	abs, _ := filepath.Abs(root)
	if c.Dir != abs {
		t.Errorf("dir = %q, want %q", c.Dir, abs)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c.Scheduler.Workers != Default().Scheduler.Workers {
		t.Error("missing loom.toml should yield defaults")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing loom.toml")
	}
}
