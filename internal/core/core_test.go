package core

import (
	"context"
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"testing"
	"time"

	"aodvv2/internal/rfc5444"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeTransport) Send(dst netip.Addr, iface string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeTransport) Run(ctx context.Context, reader *rfc5444.Reader) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestCore(t *testing.T) (*Aodvv2Core, *fakeTransport) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	transport := &fakeTransport{}

	cfg := Config{
		RREQWaitTime:     20 * time.Millisecond,
		RREQHolddownTime: 50 * time.Millisecond,
	}
	c, err := New(cfg, Deps{Transport: transport, Logger: logger})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Writer.RegisterTarget(netip.MustParseAddr("fe80::1"), "1")
	return c, transport
}

func TestNewRequiresTransport(t *testing.T) {
	_, err := New(Config{}, Deps{})
	if err == nil {
		t.Fatal("got nil error with no Transport, want an error")
	}
}

func TestNewWiresDefaults(t *testing.T) {
	c, _ := newTestCore(t)
	if c.RCS == nil || c.LRS == nil || c.Neighbors == nil || c.McMsgs == nil || c.Buffers == nil {
		t.Fatal("got a nil set store, want all wired")
	}
	if c.Engine == nil || c.Discovery == nil || c.Scheduler == nil || c.FIB == nil {
		t.Fatal("got a nil component, want all wired")
	}
	if c.Engine.Stack == nil {
		t.Fatal("got nil engine.Stack, want the core's adapter wired in")
	}
}

func TestOnRouteNeededEndToEnd(t *testing.T) {
	c, transport := newTestCore(t)

	client, err := c.RCS.Alloc(netip.MustParseAddr("2001:db8::1"), 64, 1)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	dst := netip.MustParseAddr("2001:db8:1::1")
	if err := c.OnRouteNeeded(client.Addr, dst, []byte("payload")); err != nil {
		t.Fatalf("OnRouteNeeded: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && transport.count() == 0 {
		time.Sleep(time.Millisecond)
	}
	if transport.count() == 0 {
		t.Fatal("got no sent packets, want the discovery driver's RREQ to reach the transport")
	}
}
