package discovery

import (
	"context"
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"testing"
	"time"

	"aodvv2/internal/rfc5444"
	"aodvv2/internal/scheduler"
	"aodvv2/internal/seqnum"
	"aodvv2/internal/store"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent int
}

func (r *recordingTransport) Send(dst netip.Addr, iface string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent++
	return nil
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

func newTestDriver(t *testing.T, cfg Config) (*Driver, *recordingTransport, *store.RCS) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	transport := &recordingTransport{}
	writer := rfc5444.NewWriter(transport, 1024, time.Millisecond, 8, false, logger)
	writer.RegisterTarget(netip.MustParseAddr("fe80::1"), "1")

	sched := scheduler.New(writer, 8, time.Millisecond, logger)
	rcs := store.NewRCS(4)
	lrs := store.NewLRS(16, time.Minute, time.Minute, time.Hour)
	buffers := store.NewBufferSet(8)
	seq := seqnum.NewCounter(time.Hour)

	d := New(cfg, rcs, lrs, buffers, seq, sched, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)
	go writer.Run(ctx, time.Millisecond)
	t.Cleanup(cancel)

	return d, transport, rcs
}

func waitForCount(t *testing.T, transport *recordingTransport, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if transport.count() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sent packets, got %d", want, transport.count())
}

func TestOnRouteNeededRejectsNonGlobalUnicast(t *testing.T) {
	d, _, _ := newTestDriver(t, Config{})
	client := netip.MustParseAddr("2001:db8::1")
	dst := netip.MustParseAddr("fe80::2")

	if err := d.OnRouteNeeded(client, dst, []byte("payload")); err != ErrNotGlobalUnicast {
		t.Fatalf("got %v, want ErrNotGlobalUnicast", err)
	}
	if d.Buffers.Len() != 0 {
		t.Fatalf("got %d buffered packets, want 0", d.Buffers.Len())
	}
}

func TestOnRouteNeededRejectsUnknownSource(t *testing.T) {
	d, _, _ := newTestDriver(t, Config{})
	src := netip.MustParseAddr("2001:db8::9") // not a client
	dst := netip.MustParseAddr("2001:db8:1::1")

	if err := d.OnRouteNeeded(src, dst, []byte("payload")); err != ErrNoRouterClient {
		t.Fatalf("got %v, want ErrNoRouterClient", err)
	}
}

func TestOnRouteNeededBuffersAndSendsRREQ(t *testing.T) {
	d, transport, rcs := newTestDriver(t, Config{})
	client, err := rcs.Alloc(netip.MustParseAddr("2001:db8::1"), 64, 1)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	dst := netip.MustParseAddr("2001:db8:1::1")

	if err := d.OnRouteNeeded(client.Addr, dst, []byte("payload")); err != nil {
		t.Fatalf("OnRouteNeeded: %v", err)
	}
	if d.Buffers.Len() != 1 {
		t.Fatalf("got %d buffered packets, want 1", d.Buffers.Len())
	}
	waitForCount(t, transport, 1)
}

func TestOnRouteNeededRetriesOnceThenHolddown(t *testing.T) {
	cfg := Config{
		RREQWaitTime:     20 * time.Millisecond,
		RREQHolddownTime: 60 * time.Millisecond,
	}
	d, transport, rcs := newTestDriver(t, cfg)
	client, err := rcs.Alloc(netip.MustParseAddr("2001:db8::1"), 64, 1)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	dst := netip.MustParseAddr("2001:db8:1::1")

	if err := d.OnRouteNeeded(client.Addr, dst, []byte("payload")); err != nil {
		t.Fatalf("OnRouteNeeded: %v", err)
	}
	// First RREQ, then one retry after RREQWaitTime with no route ever
	// appearing in LRS.
	waitForCount(t, transport, 2)

	// Give the second wait time to expire and enter holddown, then
	// confirm a third attempt is not issued while in holddown.
	time.Sleep(cfg.RREQWaitTime + 10*time.Millisecond)
	if got := transport.count(); got != 2 {
		t.Fatalf("got %d sent packets entering holddown, want 2", got)
	}

	if err := d.OnRouteNeeded(client.Addr, dst, []byte("payload2")); err != nil {
		t.Fatalf("OnRouteNeeded during holddown: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := transport.count(); got != 2 {
		t.Fatalf("got %d sent packets during holddown, want still 2", got)
	}

	// Once holddown elapses, a fresh OnRouteNeeded starts discovery again.
	time.Sleep(cfg.RREQHolddownTime)
	if err := d.OnRouteNeeded(client.Addr, dst, []byte("payload3")); err != nil {
		t.Fatalf("OnRouteNeeded after holddown: %v", err)
	}
	waitForCount(t, transport, 3)
}

func TestOnRouteNeededSkipsDiscoveryWhenRouteAppears(t *testing.T) {
	cfg := Config{RREQWaitTime: 20 * time.Millisecond, RREQHolddownTime: time.Second}
	d, transport, rcs := newTestDriver(t, cfg)
	client, err := rcs.Alloc(netip.MustParseAddr("2001:db8::1"), 64, 1)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	dst := netip.MustParseAddr("2001:db8:1::1")
	dstPrefix := netip.PrefixFrom(dst, 128)

	if err := d.OnRouteNeeded(client.Addr, dst, []byte("payload")); err != nil {
		t.Fatalf("OnRouteNeeded: %v", err)
	}
	waitForCount(t, transport, 1)

	_, _, err = d.LRS.Process(store.AdvRoute{
		Prefix:     dstPrefix,
		MetricType: 3,
		NextHop:    netip.MustParseAddr("fe80::1"),
		Iface:      "1",
		SeqNum:     5,
		Metric:     1,
	}, time.Now())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	time.Sleep(cfg.RREQWaitTime + 20*time.Millisecond)
	if got := transport.count(); got != 1 {
		t.Fatalf("got %d sent packets after route appeared, want 1 (no retry)", got)
	}
}
