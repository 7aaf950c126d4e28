package camera

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/scanner"
	"github.com/google/uuid"
)

// Session is the frame source for one scan: the browser pushes frames up
// the feed socket, the pipeline pulls the freshest one on demand. Each
// frame is handed out at most once so a stalled camera does not get
// re-analyzed over and over.
type Session struct {
	scanID string
	store  *Store
	logger *slog.Logger

	mu       sync.Mutex
	latest   *scanner.Frame
	consumed bool
}

func NewSession(scanID string, store *Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		scanID: scanID,
		store:  store,
		logger: logger.With("component", "camera-session", "scan_id", scanID),
	}
}

// Push records a frame received from the client and returns it with its
// assigned id.
func (s *Session) Push(ctx context.Context, data []byte, width, height int) *scanner.Frame {
	frame := &scanner.Frame{
		ID:        uuid.NewString(),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Width:     width,
		Height:    height,
	}

	s.mu.Lock()
	s.latest = frame
	s.consumed = false
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.StoreFrame(ctx, s.scanID, frame); err != nil {
			s.logger.Debug("store frame failed", "error", err)
		}
	}
	return frame
}

// CaptureFrame implements scanner.FrameSource. It returns nil when the
// camera has not pushed anything yet, or when the latest frame was
// already captured.
func (s *Session) CaptureFrame(_ context.Context) *scanner.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil || s.consumed {
		return nil
	}
	s.consumed = true
	return s.latest
}

func (s *Session) Cleanup(ctx context.Context) {
	s.mu.Lock()
	s.latest = nil
	s.consumed = false
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.DeleteFrames(ctx, s.scanID); err != nil {
			s.logger.Debug("delete frames failed", "error", err)
		}
	}
}
