package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadDefaultsWithNoConfigFile(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SocketPath != "/var/run/sysrepo.sock" {
		t.Errorf("SocketPath = %q, want default", cfg.SocketPath)
	}
	if cfg.MaxMsgSize != 262144 {
		t.Errorf("MaxMsgSize = %d, want 262144", cfg.MaxMsgSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sysrepo.yaml")
	yaml := "socket_path: /tmp/sysrepo-test.sock\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SocketPath != "/tmp/sysrepo-test.sock" {
		t.Errorf("SocketPath = %q, want file override", cfg.SocketPath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.DataDir != "/var/lib/sysrepo/data" {
		t.Errorf("DataDir = %q, want untouched default", cfg.DataDir)
	}
}

func TestLoadEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sysrepo.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	t.Setenv("SYSREPO_LOG_LEVEL", "warn")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want env override warn", cfg.LogLevel)
	}
}

func TestLoadFlagsOverrideEverything(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sysrepo.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("SYSREPO_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("sysrepo-engined", pflag.ContinueOnError)
	flags.String("log_level", "error", "log level")
	if err := flags.Set("log_level", "error"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want flag override error", cfg.LogLevel)
	}
}

func TestLoadMissingConfigFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"), nil)
	if err == nil {
		t.Error("Load() with a missing config file should error")
	}
}

func TestDumpRoundTripsThroughLoad(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "dumped.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	roundTripped, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load(dumped) error = %v", err)
	}
	if *roundTripped != *cfg {
		t.Errorf("Load(Dump(cfg)) = %+v, want %+v", roundTripped, cfg)
	}
}
