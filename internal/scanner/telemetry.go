package scanner

import (
	"sync"
	"time"
)

// Tracker keeps a bounded window of processing latencies plus monotonic
// capture/process counters. The scheduler reads the rolling average to
// adapt its tick interval.
type Tracker struct {
	mu              sync.Mutex
	window          []float64
	size            int
	framesCaptured  int64
	framesProcessed int64
}

func NewTracker(windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = defaultTelemetryWindow
	}
	return &Tracker{
		window: make([]float64, 0, windowSize),
		size:   windowSize,
	}
}

// RecordCapture counts a frame pulled from the source, whether or not it
// is ultimately processed.
func (t *Tracker) RecordCapture() {
	t.mu.Lock()
	t.framesCaptured++
	t.mu.Unlock()
}

// RecordProcessed counts a completed dispatch and folds its latency into
// the rolling window. Failed dispatches are never recorded here.
func (t *Tracker) RecordProcessed(elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.framesProcessed++
	t.window = append(t.window, float64(elapsed.Milliseconds()))
	if len(t.window) > t.size {
		t.window = t.window[1:]
	}
}

func (t *Tracker) Snapshot() ProcessingStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	var avg float64
	if len(t.window) > 0 {
		var sum float64
		for _, v := range t.window {
			sum += v
		}
		avg = sum / float64(len(t.window))
	}

	var rate float64
	if t.framesCaptured > 0 {
		rate = float64(t.framesProcessed) / float64(t.framesCaptured)
	}

	return ProcessingStats{
		AvgProcessingTimeMs: avg,
		SuccessRate:         rate,
		FramesCaptured:      t.framesCaptured,
		FramesProcessed:     t.framesProcessed,
	}
}
