package scan

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/scanner"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	sessionTTL    = 24 * time.Hour
	resultsTTL    = time.Hour
	maxResultsLen = 50
)

type Store struct {
	redis *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = shared.NewID("scan_")
	}
	sess.Status = StatusActive
	sess.StartedAt = time.Now()
	sess.LastActiveAt = time.Now()

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, sess.RedisKey(), data, sessionTTL).Err()
}

func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, "scan:"+id).Bytes()
	if err == redis.Nil {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *Session) error {
	sess.LastActiveAt = time.Now()
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, sess.RedisKey(), data, sessionTTL).Err()
}

func (s *Store) EndSession(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	sess.Status = StatusEnded
	return s.UpdateSession(ctx, sess)
}

// PushResult appends a FrameResult to the session's capped recent-results
// list so a reconnecting client can catch up.
func (s *Store) PushResult(ctx context.Context, scanID string, result scanner.FrameResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	key := resultsKey(scanID)
	pipe := s.redis.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxResultsLen-1)
	pipe.Expire(ctx, key, resultsTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) RecentResults(ctx context.Context, scanID string, limit int) ([]scanner.FrameResult, error) {
	if limit <= 0 || limit > maxResultsLen {
		limit = maxResultsLen
	}

	raw, err := s.redis.LRange(ctx, resultsKey(scanID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	results := make([]scanner.FrameResult, 0, len(raw))
	for _, entry := range raw {
		var result scanner.FrameResult
		if err := json.Unmarshal([]byte(entry), &result); err != nil {
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// DeleteResults drops the buffer immediately. Stopping a scan does not
// call this: results outlive the scan by their TTL so the client can
// still review detections and draft listings after ending the session.
func (s *Store) DeleteResults(ctx context.Context, scanID string) error {
	return s.redis.Del(ctx, resultsKey(scanID)).Err()
}
