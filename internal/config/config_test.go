package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestResolveDerivesPathsFromRoot(t *testing.T) {
	cfg := Default()
	cfg.MT5.Root = filepath.Join("srv", "mt5")
	cfg.Resolve()

	if cfg.MT5.ScriptsDir != filepath.Join("srv", "mt5", "MQL5", "Scripts") {
		t.Fatalf("Expected scripts dir under root, got '%s'", cfg.MT5.ScriptsDir)
	}
	if cfg.MT5.LogsDir != filepath.Join("srv", "mt5", "Logs") {
		t.Fatalf("Expected logs dir under root, got '%s'", cfg.MT5.LogsDir)
	}
	if cfg.MT5.Compiler != filepath.Join("srv", "mt5", "metaeditor64.exe") {
		t.Fatalf("Expected compiler under root, got '%s'", cfg.MT5.Compiler)
	}
	if cfg.MT5.Terminal != filepath.Join("srv", "mt5", "terminal64.exe") {
		t.Fatalf("Expected terminal under root, got '%s'", cfg.MT5.Terminal)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to validate, got %v", err)
	}
}

func TestResolveKeepsExplicitPaths(t *testing.T) {
	cfg := Default()
	cfg.MT5.ScriptsDir = "/data/scripts"
	cfg.MT5.Compiler = "/opt/bin/metaeditor"
	cfg.Resolve()

	if cfg.MT5.ScriptsDir != "/data/scripts" {
		t.Fatalf("Expected explicit scripts dir to be kept, got '%s'", cfg.MT5.ScriptsDir)
	}
	if cfg.MT5.Compiler != "/opt/bin/metaeditor" {
		t.Fatalf("Expected explicit compiler to be kept, got '%s'", cfg.MT5.Compiler)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.MT5.Root = ""
	cfg.MT5.CompileTimeout = 0
	cfg.MT5.ExecuteTimeout = -time.Second
	cfg.MT5.LockTimeout = 0
	cfg.Logs.TailLines = 0
	cfg.Resolve()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}

	for _, want := range []string{"scripts directory", "logs directory", "compile timeout", "execute timeout", "lock timeout", "tail lines"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("Expected error to mention '%s', got '%v'", want, err)
		}
	}
}

func TestWriteTimeoutCoversLockWaitAndLongestProcess(t *testing.T) {
	cfg := Default()
	cfg.MT5.CompileTimeout = 90 * time.Second
	cfg.MT5.ExecuteTimeout = 60 * time.Second
	cfg.MT5.LockTimeout = 20 * time.Second

	if got := cfg.WriteTimeout(); got <= 110*time.Second {
		t.Fatalf("Expected write timeout above 110s, got %s", got)
	}

	if got := Default().WriteTimeout(); got != 90*time.Second {
		t.Fatalf("Expected default write timeout 90s, got %s", got)
	}
}
