package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/scanner"
	"github.com/alanchelmickjr/price-is-right-sub000/internal/shared"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skip("Redis not available, skipping test")
	}
	return client
}

func TestStore_SessionLifecycle(t *testing.T) {
	store := NewStore(testRedis(t))
	ctx := context.Background()

	sess := &Session{OwnerID: "user-1"}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("session should get an id")
	}
	defer store.redis.Del(ctx, sess.RedisKey())

	got, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusActive || got.OwnerID != "user-1" {
		t.Errorf("unexpected session: %+v", got)
	}

	if err := store.EndSession(ctx, sess.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	got, _ = store.GetSession(ctx, sess.ID)
	if got.Status != StatusEnded {
		t.Errorf("expected ended, got %s", got.Status)
	}
}

func TestStore_GetSessionMissing(t *testing.T) {
	store := NewStore(testRedis(t))
	_, err := store.GetSession(context.Background(), "nope")
	if !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ResultsBuffer(t *testing.T) {
	store := NewStore(testRedis(t))
	ctx := context.Background()

	scanID := "test-results-" + time.Now().Format("20060102150405.000")
	defer store.DeleteResults(ctx, scanID)

	for i := 0; i < 3; i++ {
		result := scanner.FrameResult{
			FrameID:          shared.NewID("frame_"),
			Items:            []scanner.DetectedItem{{Name: "Lamp", Confidence: 0.8}},
			Timestamp:        time.Now().UnixMilli(),
			ProcessingTimeMs: 250,
		}
		if err := store.PushResult(ctx, scanID, result); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	results, err := store.RecentResults(ctx, scanID, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if len(results[0].Items) != 1 || results[0].Items[0].Name != "Lamp" {
		t.Errorf("result round trip lost items: %+v", results[0])
	}
}
