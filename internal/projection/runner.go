package projection

import (
	"context"
	"sync"
	"time"

	"tunitrip/internal/catalog"
)

// Source provides the snapshot each tick computes over.
type Source interface {
	Snapshot() *catalog.Snapshot
}

// Frame is the outcome of one tick.
type Frame struct {
	At       time.Time
	Snapshot *catalog.Snapshot
	Markers  []Marker
	Diff     Diff
}

// Sink consumes frames. Sinks are called sequentially from the tick
// goroutine and must not block for long.
type Sink interface {
	Consume(f Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(f Frame)

func (fn SinkFunc) Consume(f Frame) { fn(f) }

// Metrics receives per-tick measurements. May be nil.
type Metrics interface {
	TickObserved(d time.Duration, markers, created, removed int)
}

// Runner recomputes markers on a fixed interval. Ticks run one after the
// other on a single goroutine.
type Runner struct {
	source   Source
	interval time.Duration
	loc      *time.Location
	metrics  Metrics
	sinks    []Sink
	now      func() time.Time

	tracker *Tracker

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(source Source, interval time.Duration, loc *time.Location, metrics Metrics, sinks ...Sink) *Runner {
	if loc == nil {
		loc = time.Local
	}
	return &Runner{
		source:   source,
		interval: interval,
		loc:      loc,
		metrics:  metrics,
		sinks:    sinks,
		now:      time.Now,
		tracker:  NewTracker(),
	}
}

// Start launches the tick loop. Calling Start on a running Runner is a no-op.
func (r *Runner) Start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Tick(r.now())
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Tick(r.now())
			}
		}
	}()
}

// Stop cancels the loop and waits for the current tick to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Tick computes one frame at now and hands it to the sinks. It must not
// be called concurrently with a running loop.
func (r *Runner) Tick(now time.Time) Frame {
	start := time.Now()
	now = now.In(r.loc)
	snap := r.source.Snapshot()
	f := Frame{At: now, Snapshot: snap}
	if snap != nil {
		f.Markers = ComputeSnapshot(snap.Trips, snap.Stations, now)
	}
	f.Diff = r.tracker.Apply(f.Markers)
	for _, s := range r.sinks {
		s.Consume(f)
	}
	if r.metrics != nil {
		r.metrics.TickObserved(time.Since(start), len(f.Markers), len(f.Diff.Created), len(f.Diff.Removed))
	}
	return f
}
