package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/camera"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/scanner"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/shared"
)

// PriceHinter fills in a price suggestion for a detected item from
// comparable sold items. Implementations are best-effort.
type PriceHinter interface {
	PriceHint(ctx context.Context, name, category string) (string, bool)
}

const priceHintTimeout = 2 * time.Second

// Manager owns one pipeline per active scan session and fans results out
// to the session's feed connections.
type Manager struct {
	store  *Store
	frames *camera.Store
	hinter PriceHinter
	cfg    scanner.Config
	logger *slog.Logger

	mu     sync.RWMutex
	active map[string]*activeScan
}

type activeScan struct {
	session  *Session
	source   *camera.Session
	pipeline *scanner.Pipeline

	mu    sync.RWMutex
	conns map[*camera.Conn]struct{}
}

type ManagerConfig struct {
	Store    *Store
	Frames   *camera.Store
	Hinter   PriceHinter
	Pipeline scanner.Config
	Logger   *slog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		store:  cfg.Store,
		frames: cfg.Frames,
		hinter: cfg.Hinter,
		cfg:    cfg.Pipeline,
		logger: cfg.Logger.With("component", "scan-manager"),
		active: make(map[string]*activeScan),
	}
}

func (m *Manager) StartScan(ctx context.Context, ownerID string) (*Session, error) {
	sess := &Session{OwnerID: ownerID}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	source := camera.NewSession(sess.ID, m.frames, m.logger)
	dispatcher := scanner.NewDispatcher(m.cfg, m.logger)
	pipeline := scanner.NewPipeline(source, dispatcher, m.cfg, m.logger)

	scan := &activeScan{
		session:  sess,
		source:   source,
		pipeline: pipeline,
		conns:    make(map[*camera.Conn]struct{}),
	}
	pipeline.OnResult(func(result scanner.FrameResult) {
		m.handleResult(sess.ID, scan, result)
	})

	m.mu.Lock()
	m.active[sess.ID] = scan
	m.mu.Unlock()

	pipeline.Start()
	m.logger.Info("scan started", "scan_id", sess.ID, "owner_id", ownerID)
	return sess, nil
}

func (m *Manager) handleResult(scanID string, scan *activeScan, result scanner.FrameResult) {
	ctx, cancel := context.WithTimeout(context.Background(), priceHintTimeout)
	defer cancel()

	if m.hinter != nil {
		for i := range result.Items {
			if result.Items[i].PriceHint != "" {
				continue
			}
			if hint, ok := m.hinter.PriceHint(ctx, result.Items[i].Name, result.Items[i].Category); ok {
				result.Items[i].PriceHint = hint
			}
		}
	}

	if err := m.store.PushResult(ctx, scanID, result); err != nil {
		m.logger.Warn("store result failed", "scan_id", scanID, "error", err)
	}

	stats := scan.pipeline.Stats()
	scan.mu.RLock()
	for conn := range scan.conns {
		conn.SendResult(result)
		conn.SendStats(stats)
	}
	scan.mu.RUnlock()
}

func (m *Manager) StopScan(ctx context.Context, scanID string) error {
	m.mu.Lock()
	scan, ok := m.active[scanID]
	if ok {
		delete(m.active, scanID)
	}
	m.mu.Unlock()

	if !ok {
		return shared.ErrNotFound
	}

	scan.pipeline.Stop()

	scan.mu.Lock()
	for conn := range scan.conns {
		conn.Close()
	}
	scan.conns = make(map[*camera.Conn]struct{})
	scan.mu.Unlock()

	scan.source.Cleanup(ctx)

	if err := m.store.EndSession(ctx, scanID); err != nil {
		m.logger.Warn("end session failed", "scan_id", scanID, "error", err)
	}

	m.logger.Info("scan stopped", "scan_id", scanID)
	return nil
}

// Attach binds a feed connection to a running scan: inbound frames feed
// the pipeline's source, manual captures trigger the pipeline, and the
// connection receives results until it closes.
func (m *Manager) Attach(scanID string, conn *camera.Conn) error {
	m.mu.RLock()
	scan, ok := m.active[scanID]
	m.mu.RUnlock()
	if !ok {
		return shared.ErrNotFound
	}

	conn.OnFrame = func(data []byte, width, height int) {
		scan.source.Push(context.Background(), data, width, height)
	}
	conn.OnCapture = func(instruction string) {
		scan.pipeline.CaptureNow(scanner.CaptureOptions{Instruction: instruction})
	}

	scan.mu.Lock()
	scan.conns[conn] = struct{}{}
	scan.mu.Unlock()

	go func() {
		<-conn.Done()
		scan.mu.Lock()
		delete(scan.conns, conn)
		scan.mu.Unlock()
	}()

	return nil
}

func (m *Manager) CaptureNow(scanID string, opts scanner.CaptureOptions) (string, error) {
	m.mu.RLock()
	scan, ok := m.active[scanID]
	m.mu.RUnlock()
	if !ok {
		return "", shared.ErrNotFound
	}

	frameID, captured := scan.pipeline.CaptureNow(opts)
	if !captured {
		return "", nil
	}
	return frameID, nil
}

// Frame fetches a stored frame image by id. Works against the redis
// trail, so it keeps answering for a short while after the scan ends.
func (m *Manager) Frame(ctx context.Context, scanID, frameID string) (*scanner.Frame, error) {
	if m.frames == nil {
		return nil, shared.ErrNotFound
	}
	frame, err := m.frames.GetFrame(ctx, scanID, frameID)
	if err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, shared.ErrNotFound
	}
	return frame, nil
}

func (m *Manager) Stats(scanID string) (scanner.ProcessingStats, error) {
	m.mu.RLock()
	scan, ok := m.active[scanID]
	m.mu.RUnlock()
	if !ok {
		return scanner.ProcessingStats{}, shared.ErrNotFound
	}
	return scan.pipeline.Stats(), nil
}

// StopAll shuts down every active scan. Used on server shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.StopScan(ctx, id); err != nil && err != shared.ErrNotFound {
			m.logger.Warn("stop scan on shutdown failed", "scan_id", id, "error", err)
		}
	}
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}
