package postgres

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/notification-service/pkg/metrics"
)

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB, m *metrics.Metrics) *BaseRepository {
	if m == nil {
		m = metrics.NewNop()
	}
	return &BaseRepository{db: db, metrics: m}
}

// GetDB returns the database instance
func (r *BaseRepository) GetDB() *sqlx.DB {
	return r.db
}

// track records the outcome and latency of one operation:
//
//	defer r.track("get")(&err)
func (r *BaseRepository) track(operation string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		status := "success"
		if errp != nil && *errp != nil {
			status = "error"
		}
		r.metrics.DatabaseOperations.WithLabelValues(operation, status).Inc()
		r.metrics.DatabaseLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
