package core

import "time"

// Config holds every compile-time default from spec.md §6. All values
// are optional; Config.withDefaults fills in the spec's defaults for
// any zero field, so callers can override just the constants they
// care about.
type Config struct {
	MaxHopCount uint8

	ActiveInterval    time.Duration
	MaxIdleTime       time.Duration
	MaxBlacklistTime  time.Duration
	MaxSeqNumLifetime time.Duration

	// RERRTimeout is carried from aodvv2-defs.h for parity with the
	// original's configuration surface. It bounds link-break
	// detection, which spec.md §1 scopes to the hosting stack; this
	// core never starts a timer against it itself.
	RERRTimeout time.Duration

	RteMsgEntryTime    time.Duration
	RREQWaitTime       time.Duration
	RREQHolddownTime   time.Duration
	RREPAckSentTimeout time.Duration

	ControlTrafficLimit int // messages/sec; must be a power of two

	BufferMaxEntries int
	McMsgMaxEntries  int
	RCSMaxEntries    int
	LRSMaxEntries    int
	NeighMaxEntries  int

	RFC5444PacketSize      int
	RFC5444AggregationTime time.Duration
}

// DefaultConfig returns every spec.md §6 default.
func DefaultConfig() Config {
	return Config{
		MaxHopCount: 64,

		ActiveInterval:    5 * time.Second,
		MaxIdleTime:       200 * time.Second,
		MaxBlacklistTime:  200 * time.Second,
		MaxSeqNumLifetime: 300 * time.Second,

		RERRTimeout: 3 * time.Second,

		RteMsgEntryTime:    12 * time.Second,
		RREQWaitTime:       2 * time.Second,
		RREQHolddownTime:   10 * time.Second,
		RREPAckSentTimeout: time.Second,

		ControlTrafficLimit: 16,

		BufferMaxEntries: 10,
		McMsgMaxEntries:  16,
		RCSMaxEntries:    2,
		LRSMaxEntries:    16,
		NeighMaxEntries:  16,

		RFC5444PacketSize:      1024,
		RFC5444AggregationTime: 100 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxHopCount == 0 {
		c.MaxHopCount = d.MaxHopCount
	}
	if c.ActiveInterval == 0 {
		c.ActiveInterval = d.ActiveInterval
	}
	if c.MaxIdleTime == 0 {
		c.MaxIdleTime = d.MaxIdleTime
	}
	if c.MaxBlacklistTime == 0 {
		c.MaxBlacklistTime = d.MaxBlacklistTime
	}
	if c.MaxSeqNumLifetime == 0 {
		c.MaxSeqNumLifetime = d.MaxSeqNumLifetime
	}
	if c.RERRTimeout == 0 {
		c.RERRTimeout = d.RERRTimeout
	}
	if c.RteMsgEntryTime == 0 {
		c.RteMsgEntryTime = d.RteMsgEntryTime
	}
	if c.RREQWaitTime == 0 {
		c.RREQWaitTime = d.RREQWaitTime
	}
	if c.RREQHolddownTime == 0 {
		c.RREQHolddownTime = d.RREQHolddownTime
	}
	if c.RREPAckSentTimeout == 0 {
		c.RREPAckSentTimeout = d.RREPAckSentTimeout
	}
	if c.ControlTrafficLimit == 0 {
		c.ControlTrafficLimit = d.ControlTrafficLimit
	}
	if c.BufferMaxEntries == 0 {
		c.BufferMaxEntries = d.BufferMaxEntries
	}
	if c.McMsgMaxEntries == 0 {
		c.McMsgMaxEntries = d.McMsgMaxEntries
	}
	if c.RCSMaxEntries == 0 {
		c.RCSMaxEntries = d.RCSMaxEntries
	}
	if c.LRSMaxEntries == 0 {
		c.LRSMaxEntries = d.LRSMaxEntries
	}
	if c.NeighMaxEntries == 0 {
		c.NeighMaxEntries = d.NeighMaxEntries
	}
	if c.RFC5444PacketSize == 0 {
		c.RFC5444PacketSize = d.RFC5444PacketSize
	}
	if c.RFC5444AggregationTime == 0 {
		c.RFC5444AggregationTime = d.RFC5444AggregationTime
	}
	return c
}

// rateInterval is rate_interval = 1s / CONTROL_TRAFFIC_LIMIT (spec.md §4.6).
func (c Config) rateInterval() time.Duration {
	return time.Second / time.Duration(c.ControlTrafficLimit)
}
