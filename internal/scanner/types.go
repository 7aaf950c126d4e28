package scanner

import (
	"context"
	"time"
)

// Frame is a single still image pulled from the live camera feed.
type Frame struct {
	ID        string `json:"id"`
	Data      []byte `json:"-"`
	Timestamp int64  `json:"timestamp"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// CaptureOptions tune a single inference request.
type CaptureOptions struct {
	Instruction string  `json:"instruction,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// ProcessingRequest carries one frame through the dispatch pipeline.
// It is created when a capture is enqueued and consumed exactly once.
type ProcessingRequest struct {
	Frame   *Frame
	Options CaptureOptions
}

// BoundingBox uses relative coordinates on a 0-100 scale.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type DetectedItem struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Category    string      `json:"category"`
	Condition   string      `json:"condition,omitempty"`
	PriceHint   string      `json:"price_hint,omitempty"`
	Confidence  float64     `json:"confidence"`
	Description string      `json:"description,omitempty"`
	Box         BoundingBox `json:"bounding_box"`
}

// FrameResult correlates a set of detections back to the frame that
// produced them. Consumers must match on FrameID, not on recency.
type FrameResult struct {
	FrameID          string         `json:"frame_id"`
	Items            []DetectedItem `json:"items"`
	Timestamp        int64          `json:"timestamp"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
}

type ProcessingStats struct {
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
	SuccessRate         float64 `json:"success_rate"`
	FramesCaptured      int64   `json:"frames_captured"`
	FramesProcessed     int64   `json:"frames_processed"`
}

// FrameSource supplies still frames on demand. CaptureFrame returns nil
// when no frame is available, e.g. the camera is not yet streaming.
type FrameSource interface {
	CaptureFrame(ctx context.Context) *Frame
}

// Endpoint describes one inference backend in the failover chain.
// Kind selects the request shape: "chat", "generate" or "analyze".
type Endpoint struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

type Config struct {
	BaseInterval    time.Duration
	SettleDelay     time.Duration
	RequestTimeout  time.Duration
	QueueCapacity   int
	TelemetryWindow int
	Model           string
	Endpoints       []Endpoint
	DefaultOptions  CaptureOptions
}

const (
	defaultBaseInterval    = 3 * time.Second
	defaultSettleDelay     = 100 * time.Millisecond
	defaultRequestTimeout  = 30 * time.Second
	defaultQueueCapacity   = 2
	defaultTelemetryWindow = 10
)

func (c Config) withDefaults() Config {
	if c.BaseInterval <= 0 {
		c.BaseInterval = defaultBaseInterval
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.TelemetryWindow <= 0 {
		c.TelemetryWindow = defaultTelemetryWindow
	}
	return c
}
