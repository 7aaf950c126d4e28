package scanner

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pipeline owns the capture cadence for one camera session: it pulls
// frames from the source on a timer, keeps a small FIFO of pending
// requests, and runs them through the dispatcher one at a time. When the
// backend slows down, the tick interval stretches to match rather than
// piling up requests; when the queue is full, new frames are dropped.
type Pipeline struct {
	cfg        Config
	source     FrameSource
	dispatcher *Dispatcher
	telemetry  *Tracker
	logger     *slog.Logger

	mu        sync.Mutex
	queue     []*ProcessingRequest
	executing bool
	running   bool
	interval  time.Duration
	onResult  func(FrameResult)

	done     chan struct{}
	stopOnce sync.Once
}

func NewPipeline(source FrameSource, dispatcher *Dispatcher, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &Pipeline{
		cfg:        cfg,
		source:     source,
		dispatcher: dispatcher,
		telemetry:  NewTracker(cfg.TelemetryWindow),
		logger:     logger.With("component", "scan-pipeline"),
		interval:   cfg.BaseInterval,
		done:       make(chan struct{}),
	}
}

// OnResult registers the handler invoked with each FrameResult. Register
// before Start; results are delivered in dispatch order.
func (p *Pipeline) OnResult(fn func(FrameResult)) {
	p.mu.Lock()
	p.onResult = fn
	p.mu.Unlock()
}

func (p *Pipeline) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.run()
	p.logger.Info("pipeline started",
		"base_interval", p.cfg.BaseInterval,
		"queue_capacity", p.cfg.QueueCapacity,
		"endpoints", len(p.cfg.Endpoints))
}

// Stop halts the tick timer. An in-flight dispatch is abandoned, not
// awaited; it completes or times out on its own and its result is
// discarded by the closed pipeline.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		close(p.done)
		p.logger.Info("pipeline stopped")
	})
}

func (p *Pipeline) run() {
	timer := time.NewTimer(p.Interval())
	defer timer.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-timer.C:
			p.Tick()
			timer.Reset(p.Interval())
		}
	}
}

// Tick pulls one frame and enqueues it unless the pipeline is saturated.
// A dropped frame is the intended backpressure mechanism, not an error.
func (p *Pipeline) Tick() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	frame := p.source.CaptureFrame(context.Background())
	if frame == nil {
		return
	}
	p.telemetry.RecordCapture()

	p.mu.Lock()
	if p.executing || len(p.queue) >= p.cfg.QueueCapacity {
		p.mu.Unlock()
		p.logger.Debug("frame dropped, pipeline saturated", "frame_id", frame.ID)
		return
	}
	p.queue = append(p.queue, &ProcessingRequest{Frame: frame, Options: p.cfg.DefaultOptions})
	p.mu.Unlock()

	go p.drain()
}

// CaptureNow is the manual "tap to capture" path. It bypasses the cadence
// timer but still respects the queue capacity and the single-flight
// discipline, returning the frame id without waiting for the result.
func (p *Pipeline) CaptureNow(opts CaptureOptions) (string, bool) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return "", false
	}
	p.mu.Unlock()

	frame := p.source.CaptureFrame(context.Background())
	if frame == nil {
		return "", false
	}
	p.telemetry.RecordCapture()

	if opts == (CaptureOptions{}) {
		opts = p.cfg.DefaultOptions
	}

	p.mu.Lock()
	if len(p.queue) >= p.cfg.QueueCapacity {
		p.mu.Unlock()
		p.logger.Debug("manual capture dropped, queue full", "frame_id", frame.ID)
		return "", false
	}
	p.queue = append(p.queue, &ProcessingRequest{Frame: frame, Options: opts})
	p.mu.Unlock()

	go p.drain()
	return frame.ID, true
}

func (p *Pipeline) Stats() ProcessingStats {
	return p.telemetry.Snapshot()
}

// Interval is the effective minimum time between ticks:
// max(base, 1.5 * rolling average latency).
func (p *Pipeline) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// drain pops and executes queued requests one at a time. The pop and the
// executing flag flip happen under one lock acquisition, so re-entrant
// drain calls from concurrent ticks serialize on the flag.
func (p *Pipeline) drain() {
	for {
		p.mu.Lock()
		if !p.running || p.executing || len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		req := p.queue[0]
		p.queue = p.queue[1:]
		p.executing = true
		p.mu.Unlock()

		p.execute(req)

		p.mu.Lock()
		pending := len(p.queue)
		p.mu.Unlock()
		if pending == 0 {
			return
		}

		select {
		case <-p.done:
			return
		case <-time.After(p.cfg.SettleDelay):
		}
	}
}

func (p *Pipeline) execute(req *ProcessingRequest) {
	defer func() {
		p.mu.Lock()
		p.executing = false
		p.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	items, err := p.dispatcher.Dispatch(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		p.logger.Warn("no endpoint produced a result", "frame_id", req.Frame.ID, "error", err)
		return
	}

	p.telemetry.RecordProcessed(elapsed)
	p.recomputeInterval()

	p.mu.Lock()
	emit := p.onResult
	running := p.running
	p.mu.Unlock()

	if len(items) > 0 && emit != nil && running {
		emit(FrameResult{
			FrameID:          req.Frame.ID,
			Items:            items,
			Timestamp:        time.Now().UnixMilli(),
			ProcessingTimeMs: elapsed.Milliseconds(),
		})
	}
}

func (p *Pipeline) recomputeInterval() {
	avg := p.telemetry.Snapshot().AvgProcessingTimeMs
	adaptive := time.Duration(avg*1.5) * time.Millisecond

	p.mu.Lock()
	if adaptive > p.cfg.BaseInterval {
		p.interval = adaptive
	} else {
		p.interval = p.cfg.BaseInterval
	}
	p.mu.Unlock()
}
