package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectorEmitsAllDescs(t *testing.T) {
	c := NewCollector(Stores{
		RCSLen:       func() int { return 1 },
		NeighborsLen: func() int { return 2 },
		LRSLen:       func() int { return 3 },
		McMsgsLen:    func() int { return 4 },
		BuffersLen:   func() int { return 5 },
		QueueLen:     func() int { return 6 },
	})

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	want := map[string]float64{
		"aodvv2_router_client_set_size":     1,
		"aodvv2_neighbor_set_size":          2,
		"aodvv2_local_route_set_size":       3,
		"aodvv2_multicast_message_set_size": 4,
		"aodvv2_buffered_packet_set_size":   5,
		"aodvv2_scheduler_queue_depth":      6,
	}

	got := make(map[string]float64)
	for _, mf := range metricFamilies {
		for _, m := range mf.GetMetric() {
			if g := m.GetGauge(); g != nil {
				got[mf.GetName()] = g.GetValue()
			}
		}
	}

	for name, v := range want {
		if got[name] != v {
			t.Errorf("got %s=%v, want %v", name, got[name], v)
		}
	}
}

func TestCollectorHandlesNilAccessors(t *testing.T) {
	c := NewCollector(Stores{})
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather: %v", err)
	}
}
