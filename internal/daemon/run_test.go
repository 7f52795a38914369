package daemon

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/sysrepo-engine/internal/config"
	"github.com/cuemby/sysrepo-engine/internal/telemetry"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	telemetry.Init(telemetry.Config{Level: telemetry.ErrorLevel})
	dir := t.TempDir()
	return &config.Config{
		SocketPath:  filepath.Join(dir, "engine.sock"),
		DataDir:     filepath.Join(dir, "data"),
		PIDFile:     filepath.Join(dir, "engine.pid"),
		MaxMsgSize:  262144,
		MaxConns:    4,
		MetricsAddr: "127.0.0.1:0",
		LogLevel:    "error",
	}
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, err := net.Dial("unix", path); err == nil {
			c.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s never came up", path)
}

func TestRunServesUntilContextCancelled(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	waitForSocket(t, cfg.SocketPath)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestRunRefusesSecondInstanceOnSamePIDFile(t *testing.T) {
	cfg := testConfig(t)
	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()

	done := make(chan error, 1)
	go func() { done <- Run(ctx1, cfg) }()
	waitForSocket(t, cfg.SocketPath)

	cfg2 := *cfg
	cfg2.SocketPath = filepath.Join(t.TempDir(), "other.sock")
	err := Run(context.Background(), &cfg2)
	if err == nil {
		t.Error("second Run() with the same pidfile should fail")
	}

	cancel1()
	<-done
}
