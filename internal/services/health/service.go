package health

import (
	"context"
	"database/sql"
	"time"
)

const pingTimeout = 2 * time.Second

// Service encapsulates health-related checks.
type Service struct {
	DB *sql.DB
}

// NewService constructs a new health service. db may be nil when the
// metadata store runs in memory.
func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

// Status reports overall health and the state of the metadata database:
// "up", "down" or "memory".
func (s *Service) Status(ctx context.Context) (bool, map[string]any) {
	if s == nil || s.DB == nil {
		return true, map[string]any{"ok": true, "database": "memory"}
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		return false, map[string]any{"ok": false, "database": "down"}
	}
	return true, map[string]any{"ok": true, "database": "up"}
}
