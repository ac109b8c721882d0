// Package metrics exposes the core's set-store occupancy and
// scheduler queue depth as Prometheus metrics. Nothing in the core
// itself depends on this package; a deployment registers Collector
// alongside the default registry if it wants scraping.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stores is the subset of internal/core.Aodvv2Core the collector
// reads at scrape time. A struct of accessor closures rather than a
// *core.Aodvv2Core pointer so this package doesn't import internal/core (keeping the
// dependency direction core -> metrics, not metrics -> core).
type Stores struct {
	RCSLen       func() int
	NeighborsLen func() int
	LRSLen       func() int
	McMsgsLen    func() int
	BuffersLen   func() int
	QueueLen     func() int
}

// Collector implements prometheus.Collector over Stores, sampling
// every gauge fresh on each Collect rather than tracking running
// state — the same scrape-time-snapshot shape as
// yuuki-rdma_exporter/internal/collector.RdmaCollector.Collect.
type Collector struct {
	stores Stores

	rcsDesc       *prometheus.Desc
	neighborsDesc *prometheus.Desc
	lrsDesc       *prometheus.Desc
	mcmsgsDesc    *prometheus.Desc
	buffersDesc   *prometheus.Desc
	queueDesc     *prometheus.Desc

	scrapeDuration prometheus.Histogram
}

// NewCollector returns a Collector reading from stores.
func NewCollector(stores Stores) *Collector {
	return &Collector{
		stores: stores,
		rcsDesc: prometheus.NewDesc(
			"aodvv2_router_client_set_size",
			"Current number of entries in the Router Client Set.",
			nil, nil,
		),
		neighborsDesc: prometheus.NewDesc(
			"aodvv2_neighbor_set_size",
			"Current number of entries in the Neighbor Set.",
			nil, nil,
		),
		lrsDesc: prometheus.NewDesc(
			"aodvv2_local_route_set_size",
			"Current number of entries in the Local Route Set.",
			nil, nil,
		),
		mcmsgsDesc: prometheus.NewDesc(
			"aodvv2_multicast_message_set_size",
			"Current number of entries in the Multicast Message Set.",
			nil, nil,
		),
		buffersDesc: prometheus.NewDesc(
			"aodvv2_buffered_packet_set_size",
			"Current number of packets held in the buffered-packet set awaiting a route.",
			nil, nil,
		),
		queueDesc: prometheus.NewDesc(
			"aodvv2_scheduler_queue_depth",
			"Current number of outgoing control messages queued in the scheduler.",
			nil, nil,
		),
		scrapeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aodvv2_metrics_scrape_duration_seconds",
			Help:    "Time spent sampling set-store sizes for a single scrape.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rcsDesc
	ch <- c.neighborsDesc
	ch <- c.lrsDesc
	ch <- c.mcmsgsDesc
	ch <- c.buffersDesc
	ch <- c.queueDesc
	c.scrapeDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	start := time.Now()
	defer func() {
		c.scrapeDuration.Observe(time.Since(start).Seconds())
		c.scrapeDuration.Collect(ch)
	}()

	emit := func(desc *prometheus.Desc, fn func() int) {
		if fn == nil {
			return
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(fn()))
	}

	emit(c.rcsDesc, c.stores.RCSLen)
	emit(c.neighborsDesc, c.stores.NeighborsLen)
	emit(c.lrsDesc, c.stores.LRSLen)
	emit(c.mcmsgsDesc, c.stores.McMsgsLen)
	emit(c.buffersDesc, c.stores.BuffersLen)
	emit(c.queueDesc, c.stores.QueueLen)
}
