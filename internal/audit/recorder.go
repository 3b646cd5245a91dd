// Package audit streams edit outcomes to BigQuery for offline analysis.
// Recording is best-effort; a warehouse hiccup never fails a save.
package audit

import (
	"context"
	"time"

	"github.com/lumasites/lumasites-backend/pkg/logger"
)

// Inserter is the warehouse surface the recorder needs.
type Inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Event is one media-save audit row.
type Event struct {
	SiteKey     string    `bigquery:"site_key"`
	EntityKind  string    `bigquery:"entity_kind"`
	EntityID    string    `bigquery:"entity_id"`
	Outcome     string    `bigquery:"outcome"`
	ImageCount  int       `bigquery:"image_count"`
	VideoCount  int       `bigquery:"video_count"`
	UploadCount int       `bigquery:"upload_count"`
	DeleteCount int       `bigquery:"delete_count"`
	DurationMS  int64     `bigquery:"duration_ms"`
	OccurredAt  time.Time `bigquery:"occurred_at"`
}

// Recorder writes audit events to the configured table.
type Recorder struct {
	inserter Inserter
	table    string
	logg     *logger.Logger
}

func NewRecorder(inserter Inserter, table string, logg *logger.Logger) *Recorder {
	return &Recorder{inserter: inserter, table: table, logg: logg}
}

// Record inserts the event, swallowing failures. A nil recorder or inserter
// disables auditing entirely.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil || r.inserter == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := r.inserter.InsertRows(ctx, r.table, []any{event}); err != nil && r.logg != nil {
		r.logg.Warn(ctx, "audit event insert failed")
	}
}
