package core

import (
	"time"

	"aodvv2/internal/metrics"
)

// Metrics returns a Prometheus collector sampling this core's set
// stores and scheduler queue at scrape time.
func (c *Aodvv2Core) Metrics() *metrics.Collector {
	now := time.Now
	return metrics.NewCollector(metrics.Stores{
		RCSLen:       c.RCS.Len,
		NeighborsLen: func() int { return len(c.Neighbors.All(now())) },
		LRSLen:       func() int { return len(c.LRS.All(now())) },
		McMsgsLen:    c.McMsgs.Len,
		BuffersLen:   c.Buffers.Len,
		QueueLen:     c.Scheduler.Len,
	})
}
