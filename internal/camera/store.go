package camera

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/scanner"
	"github.com/redis/go-redis/v9"
)

// Store keeps a short-lived trail of frames per scan session so a client
// can freeze-frame a result against the exact image that produced it.
type Store struct {
	redis    *redis.Client
	frameTTL time.Duration
}

func NewStore(redisClient *redis.Client, frameTTL time.Duration) *Store {
	if frameTTL == 0 {
		frameTTL = 60 * time.Second
	}
	return &Store{
		redis:    redisClient,
		frameTTL: frameTTL,
	}
}

type storedFrame struct {
	ID        string `json:"id"`
	Data      []byte `json:"data"`
	Timestamp int64  `json:"timestamp"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

func framesKey(scanID string) string {
	return fmt.Sprintf("scan:%s:frames", scanID)
}

func (s *Store) StoreFrame(ctx context.Context, scanID string, frame *scanner.Frame) error {
	data, err := json.Marshal(storedFrame{
		ID:        frame.ID,
		Data:      frame.Data,
		Timestamp: frame.Timestamp,
		Width:     frame.Width,
		Height:    frame.Height,
	})
	if err != nil {
		return err
	}

	key := framesKey(scanID)
	pipe := s.redis.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(frame.Timestamp), Member: data})
	pipe.Expire(ctx, key, s.frameTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) GetFrame(ctx context.Context, scanID, frameID string) (*scanner.Frame, error) {
	results, err := s.redis.ZRevRange(ctx, framesKey(scanID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	for _, raw := range results {
		var sf storedFrame
		if err := json.Unmarshal([]byte(raw), &sf); err != nil {
			continue
		}
		if sf.ID == frameID {
			return &scanner.Frame{
				ID:        sf.ID,
				Data:      sf.Data,
				Timestamp: sf.Timestamp,
				Width:     sf.Width,
				Height:    sf.Height,
			}, nil
		}
	}
	return nil, nil
}

func (s *Store) DeleteFrames(ctx context.Context, scanID string) error {
	return s.redis.Del(ctx, framesKey(scanID)).Err()
}
