package scanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubSource struct {
	mu    sync.Mutex
	calls int
	ready bool
}

func (s *stubSource) CaptureFrame(_ context.Context) *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if !s.ready {
		return nil
	}
	return &Frame{
		ID:        fmt.Sprintf("frame-%d", s.calls),
		Data:      []byte{0xff, 0xd8},
		Timestamp: time.Now().UnixMilli(),
		Width:     640,
		Height:    480,
	}
}

func (s *stubSource) captureCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubTransport struct {
	name     string
	delay    time.Duration
	response string
	err      error

	inFlight      int32
	maxConcurrent int32

	mu       sync.Mutex
	frameIDs []string
}

func (t *stubTransport) Name() string { return t.name }

func (t *stubTransport) Invoke(_ context.Context, req *ProcessingRequest) (string, error) {
	cur := atomic.AddInt32(&t.inFlight, 1)
	defer atomic.AddInt32(&t.inFlight, -1)
	for {
		max := atomic.LoadInt32(&t.maxConcurrent)
		if cur <= max || atomic.CompareAndSwapInt32(&t.maxConcurrent, max, cur) {
			break
		}
	}

	t.mu.Lock()
	t.frameIDs = append(t.frameIDs, req.Frame.ID)
	t.mu.Unlock()

	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	return t.response, t.err
}

func (t *stubTransport) dispatched() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.frameIDs...)
}

func newTestPipeline(transport Transport) (*Pipeline, *stubSource) {
	source := &stubSource{ready: true}
	dispatcher := NewDispatcherWithTransports([]Transport{transport}, testLogger())
	cfg := Config{
		BaseInterval: time.Hour, // ticks driven manually in tests
		SettleDelay:  5 * time.Millisecond,
	}
	return NewPipeline(source, dispatcher, cfg, testLogger()), source
}

func waitProcessed(t *testing.T, p *Pipeline, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Stats().FramesProcessed >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d processed frames, stats: %+v", want, p.Stats())
}

func TestPipeline_SingleFlight(t *testing.T) {
	transport := &stubTransport{name: "stub", delay: 30 * time.Millisecond, response: `[{"name":"Lamp"}]`}
	p, _ := newTestPipeline(transport)
	p.Start()
	defer p.Stop()

	for i := 0; i < 10; i++ {
		p.Tick()
		p.CaptureNow(CaptureOptions{})
		time.Sleep(5 * time.Millisecond)
	}
	waitProcessed(t, p, 1)
	time.Sleep(100 * time.Millisecond)

	if max := atomic.LoadInt32(&transport.maxConcurrent); max > 1 {
		t.Errorf("in-flight dispatches exceeded 1: %d", max)
	}
}

func TestPipeline_QueueNeverExceedsCapacity(t *testing.T) {
	transport := &stubTransport{name: "stub", delay: 100 * time.Millisecond, response: `[{"name":"Lamp"}]`}
	p, _ := newTestPipeline(transport)
	p.Start()
	defer p.Stop()

	p.Tick() // begins executing
	waitDispatchStarted(t, transport, 1)

	if _, ok := p.CaptureNow(CaptureOptions{}); !ok {
		t.Fatal("first queued capture should be accepted")
	}
	if _, ok := p.CaptureNow(CaptureOptions{}); !ok {
		t.Fatal("second queued capture should be accepted")
	}
	if _, ok := p.CaptureNow(CaptureOptions{}); ok {
		t.Error("capture beyond queue capacity should be dropped")
	}

	p.mu.Lock()
	depth := len(p.queue)
	p.mu.Unlock()
	if depth > p.cfg.QueueCapacity {
		t.Errorf("queue depth %d exceeds capacity %d", depth, p.cfg.QueueCapacity)
	}

	for i := 0; i < 5; i++ {
		p.Tick()
	}
	p.mu.Lock()
	depth = len(p.queue)
	p.mu.Unlock()
	if depth > p.cfg.QueueCapacity {
		t.Errorf("ticks grew queue past capacity: %d", depth)
	}
}

func waitDispatchStarted(t *testing.T, transport *stubTransport, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(transport.dispatched()) >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("dispatch never started")
}

func TestPipeline_ResultsOrderedAndCorrelated(t *testing.T) {
	transport := &stubTransport{name: "stub", delay: 20 * time.Millisecond, response: `[{"name":"Lamp"}]`}
	p, _ := newTestPipeline(transport)

	var mu sync.Mutex
	var results []FrameResult
	p.OnResult(func(res FrameResult) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	})
	p.Start()
	defer p.Stop()

	p.Tick()
	waitDispatchStarted(t, transport, 1)
	p.CaptureNow(CaptureOptions{})
	p.CaptureNow(CaptureOptions{})

	waitProcessed(t, p, 3)
	time.Sleep(20 * time.Millisecond)

	dispatched := transport.dispatched()
	mu.Lock()
	defer mu.Unlock()
	if len(results) != len(dispatched) {
		t.Fatalf("expected %d results, got %d", len(dispatched), len(results))
	}
	for i, res := range results {
		if res.FrameID != dispatched[i] {
			t.Errorf("result %d out of order: got %s, dispatched %s", i, res.FrameID, dispatched[i])
		}
		if len(res.Items) == 0 {
			t.Errorf("result %d has no items", i)
		}
	}
}

func TestPipeline_TotalFailureEmitsNothing(t *testing.T) {
	transport := &stubTransport{name: "stub", err: fmt.Errorf("backend down")}
	p, _ := newTestPipeline(transport)

	emitted := int32(0)
	p.OnResult(func(FrameResult) { atomic.AddInt32(&emitted, 1) })
	p.Start()
	defer p.Stop()

	p.Tick()
	waitDispatchStarted(t, transport, 1)
	time.Sleep(50 * time.Millisecond)

	stats := p.Stats()
	if stats.FramesCaptured != 1 {
		t.Errorf("expected 1 captured, got %d", stats.FramesCaptured)
	}
	if stats.FramesProcessed != 0 {
		t.Errorf("failed dispatch must not count as processed, got %d", stats.FramesProcessed)
	}
	if stats.SuccessRate != 0 {
		t.Errorf("expected success rate 0, got %f", stats.SuccessRate)
	}
	if atomic.LoadInt32(&emitted) != 0 {
		t.Error("no FrameResult should fire on total failure")
	}
}

func TestPipeline_NoItemsNoEmit(t *testing.T) {
	transport := &stubTransport{name: "stub", response: `[]`}
	p, _ := newTestPipeline(transport)

	emitted := int32(0)
	p.OnResult(func(FrameResult) { atomic.AddInt32(&emitted, 1) })
	p.Start()
	defer p.Stop()

	p.Tick()
	waitProcessed(t, p, 1)

	if atomic.LoadInt32(&emitted) != 0 {
		t.Error("empty detections must not emit a FrameResult")
	}
}

func TestPipeline_SourceNotReady(t *testing.T) {
	transport := &stubTransport{name: "stub", response: `[{"name":"Lamp"}]`}
	p, source := newTestPipeline(transport)
	source.ready = false
	p.Start()
	defer p.Stop()

	p.Tick()
	if id, ok := p.CaptureNow(CaptureOptions{}); ok || id != "" {
		t.Error("capture must fail when source is not ready")
	}

	stats := p.Stats()
	if stats.FramesCaptured != 0 {
		t.Errorf("unready source must not count captures, got %d", stats.FramesCaptured)
	}
}

func TestPipeline_StopHaltsCaptures(t *testing.T) {
	transport := &stubTransport{name: "stub", response: `[{"name":"Lamp"}]`}
	p, source := newTestPipeline(transport)
	p.Start()
	p.Stop()

	before := source.captureCalls()
	for i := 0; i < 3; i++ {
		p.Tick()
	}
	if _, ok := p.CaptureNow(CaptureOptions{}); ok {
		t.Error("CaptureNow must fail after Stop")
	}
	if source.captureCalls() != before {
		t.Error("ticks after Stop must not pull frames")
	}
	if len(transport.dispatched()) != 0 {
		t.Error("ticks after Stop must not dispatch")
	}
}

func TestPipeline_AdaptiveInterval(t *testing.T) {
	transport := &stubTransport{name: "stub", response: `[{"name":"Lamp"}]`}
	source := &stubSource{ready: true}
	dispatcher := NewDispatcherWithTransports([]Transport{transport}, testLogger())
	p := NewPipeline(source, dispatcher, Config{BaseInterval: 100 * time.Millisecond}, testLogger())

	for _, ms := range []int{200, 400, 600} {
		p.telemetry.RecordProcessed(time.Duration(ms) * time.Millisecond)
	}
	p.recomputeInterval()

	if got := p.Interval(); got != 600*time.Millisecond {
		t.Errorf("expected interval 600ms (1.5 * avg 400ms), got %v", got)
	}
}

func TestPipeline_IntervalNeverBelowBase(t *testing.T) {
	transport := &stubTransport{name: "stub", response: `[]`}
	source := &stubSource{ready: true}
	dispatcher := NewDispatcherWithTransports([]Transport{transport}, testLogger())
	p := NewPipeline(source, dispatcher, Config{BaseInterval: 2 * time.Second}, testLogger())

	p.telemetry.RecordProcessed(50 * time.Millisecond)
	p.recomputeInterval()

	if got := p.Interval(); got != 2*time.Second {
		t.Errorf("expected base interval 2s, got %v", got)
	}
}

func TestPipeline_CaptureNowReturnsFrameID(t *testing.T) {
	transport := &stubTransport{name: "stub", response: `[{"name":"Lamp"}]`}
	p, _ := newTestPipeline(transport)
	p.Start()
	defer p.Stop()

	id, ok := p.CaptureNow(CaptureOptions{Instruction: "identify this"})
	if !ok || id == "" {
		t.Fatalf("expected frame id, got %q ok=%v", id, ok)
	}
	waitProcessed(t, p, 1)

	dispatched := transport.dispatched()
	if len(dispatched) != 1 || dispatched[0] != id {
		t.Errorf("dispatched frame %v does not match returned id %s", dispatched, id)
	}
}
