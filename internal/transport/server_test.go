package transport

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/sysrepo-engine/internal/notify"
	"github.com/cuemby/sysrepo-engine/internal/session"
	"github.com/cuemby/sysrepo-engine/internal/wire"
)

type stubHandler struct {
	closed []uint64
}

func (h *stubHandler) Handle(conn Conn, req *wire.Request) *wire.Response {
	return &wire.Response{ID: req.ID, Op: req.Op}
}

func (h *stubHandler) ConnectionClosed(connID uint64) {
	h.closed = append(h.closed, connID)
}

func startTestServer(t *testing.T, handler RequestHandler) (*Server, string) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "test.sock")
	srv := NewServer(Config{SocketPath: sock, MaxConns: 4}, session.NewManager(), handler)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, err := net.Dial("unix", sock); err == nil {
			c.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Cleanup(srv.Stop)
	return srv, sock
}

func TestRequestResponseRoundTrip(t *testing.T) {
	h := &stubHandler{}
	_, sock := startTestServer(t, h)

	c, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	req := &wire.Request{ID: 42, Op: wire.OpListSchemas}
	if err := wire.WriteRequest(c, req, wire.DefaultMaxMsgSize); err != nil {
		t.Fatalf("write request error = %v", err)
	}

	resp, err := wire.ReadResponse(c, wire.DefaultMaxMsgSize)
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}
	if resp.ID != 42 || resp.Op != wire.OpListSchemas {
		t.Errorf("resp = %+v, want ID=42 Op=list_schemas", resp)
	}
}

func TestConnectionClosedCalledOnDisconnect(t *testing.T) {
	h := &stubHandler{}
	_, sock := startTestServer(t, h)

	c, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	c.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(h.closed) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if len(h.closed) != 1 {
		t.Errorf("ConnectionClosed called %d times, want 1", len(h.closed))
	}
}

func TestDeliverToUnknownConnectionErrors(t *testing.T) {
	h := &stubHandler{}
	srv, _ := startTestServer(t, h)

	n := notify.Notification{
		Subscription: notify.Subscription{DestinationAddress: "conn:9999", DestinationID: "dst"},
		Module:       "example-module",
	}
	if err := srv.Deliver(context.Background(), n); err == nil {
		t.Error("Deliver() to a connection that was never opened should error")
	}
}

func TestParseConnIDRejectsMalformed(t *testing.T) {
	if _, err := parseConnID("not-a-conn-address"); err == nil {
		t.Error("parseConnID() on malformed address should error")
	}
}
