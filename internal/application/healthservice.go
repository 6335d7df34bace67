package application

import (
	"context"
	"time"
)

// Pinger is implemented by dependencies whose reachability is reported by
// the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReport is the local process health view.
type HealthReport struct {
	Status        string    `json:"status"`
	Database      string    `json:"database"`
	Authenticated bool      `json:"authenticated"`
	CheckedAt     time.Time `json:"checked_at"`
}

// HealthService reports whether the local credential database is reachable
// and whether a session is currently published. It never contacts the
// storefront backend.
type HealthService struct {
	db      Pinger
	session SessionSource
	now     func() time.Time
}

// NewHealthService creates a new HealthService with the required dependencies.
func NewHealthService(db Pinger, session SessionSource) *HealthService {
	return &HealthService{
		db:      db,
		session: session,
		now:     time.Now,
	}
}

// Check assembles the health report. A database failure degrades the status
// but is not returned as an error.
func (s *HealthService) Check(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:        "ok",
		Database:      "ok",
		Authenticated: s.session.Current().Authenticated(),
		CheckedAt:     s.now().UTC(),
	}

	if err := s.db.Ping(ctx); err != nil {
		report.Status = "degraded"
		report.Database = "unreachable"
	}
	return report
}
