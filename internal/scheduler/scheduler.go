// Package scheduler implements C6: the single routing task that owns
// the bounded priority queue of outgoing control messages and enforces
// the global rate limit between the message engine/discovery driver
// and the RFC 5444 writer (spec.md §4.6).
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"aodvv2/internal/rfc5444"
)

// ErrQueueFull is returned by Enqueue when the queue is already at
// capacity and evicting its lowest-priority pending entry would mean
// evicting one strictly higher priority than the newcomer.
var ErrQueueFull = errors.New("scheduler: queue full")

// Scheduler rate-limits and priority-orders outgoing control messages
// before handing them to the RFC 5444 writer.
type Scheduler struct {
	writer   *rfc5444.Writer
	logger   *slog.Logger
	capacity int
	rate     time.Duration

	mu      sync.Mutex
	pq      priorityQueue
	nextSeq uint64
	wake    chan struct{}

	now func() time.Time
}

// New builds a Scheduler bounded at capacity entries, releasing one
// message per rate (spec.md's `rate_interval = 1s / CONTROL_TRAFFIC_LIMIT`).
func New(writer *rfc5444.Writer, capacity int, rate time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		writer:   writer,
		logger:   logger,
		capacity: capacity,
		rate:     rate,
		wake:     make(chan struct{}, 1),
		now:      time.Now,
	}
	heap.Init(&s.pq)
	return s
}

// Enqueue is the scheduler's single public entry point (spec.md
// §4.6); thread-safe. When the queue is full it evicts the
// lowest-priority pending entry, unless that entry outranks job — in
// which case Enqueue fails rather than displace a more urgent message.
func (s *Scheduler) Enqueue(job Job) error {
	s.mu.Lock()
	if len(s.pq) >= s.capacity {
		lowest := s.lowestLocked()
		if lowest == nil || lowest.job.Priority > job.Priority {
			s.mu.Unlock()
			return ErrQueueFull
		}
		heap.Remove(&s.pq, lowest.index)
	}
	heap.Push(&s.pq, &entry{job: job, seq: s.nextSeq})
	s.nextSeq++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *Scheduler) lowestLocked() *entry {
	var lowest *entry
	for _, e := range s.pq {
		if lowest == nil || e.job.Priority < lowest.job.Priority ||
			(e.job.Priority == lowest.job.Priority && e.seq < lowest.seq) {
			lowest = e
		}
	}
	return lowest
}

// Len reports the number of pending jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pq)
}

// Run drives the single routing task until ctx is cancelled: one
// message released per rate interval, highest priority first; blocks
// on new arrivals while the queue is empty.
func (s *Scheduler) Run(ctx context.Context) error {
	var lastSent time.Time
	for {
		s.mu.Lock()
		empty := len(s.pq) == 0
		s.mu.Unlock()

		if empty {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
			}
			continue
		}

		if wait := s.rate - s.now().Sub(lastSent); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-s.wake:
				t.Stop()
			case <-t.C:
			}
			continue
		}

		s.mu.Lock()
		var job Job
		ok := len(s.pq) > 0
		if ok {
			job = heap.Pop(&s.pq).(*entry).job
		}
		s.mu.Unlock()
		if !ok {
			continue
		}

		if err := s.writer.CreateMessage(job.Selector, job.Build); err != nil {
			s.logger.Warn("scheduler: failed to materialize message", "error", err)
		}
		lastSent = s.now()
	}
}
