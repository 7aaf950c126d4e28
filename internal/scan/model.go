package scan

import "time"

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Session is one camera scanning session: a pipeline runs for as long as
// the session is active.
type Session struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id,omitempty"`
	Status       Status    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func (s *Session) RedisKey() string {
	return "scan:" + s.ID
}

func resultsKey(scanID string) string {
	return "scan:" + scanID + ":results"
}
