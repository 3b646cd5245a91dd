package mediasync

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/multierr"

	"github.com/lumasites/lumasites-backend/pkg/logger"
	"github.com/lumasites/lumasites-backend/pkg/metrics"
	"github.com/lumasites/lumasites-backend/pkg/storage"
)

// DeleteResult classifies one orphan deletion attempt. Only Failed is logged;
// nothing is ever surfaced to the editor or rolled back.
type DeleteResult string

const (
	DeleteOk       DeleteResult = "ok"
	DeleteNotFound DeleteResult = "not_found"
	DeleteFailed   DeleteResult = "failed"
)

// DeleteOutcome records what happened to one orphan path.
type DeleteOutcome struct {
	Path   string
	Result DeleteResult
	Err    error
}

// Reconciler removes blobs orphaned by a committed save. It runs strictly
// after the document write and never influences it.
type Reconciler struct {
	store   storage.Store
	logg    *logger.Logger
	metrics *metrics.MediaMetrics
}

func NewReconciler(store storage.Store, logg *logger.Logger, m *metrics.MediaMetrics) *Reconciler {
	return &Reconciler{store: store, logg: logg, metrics: m}
}

// Orphans computes before \ after, sorted for deterministic iteration.
func Orphans(before, after map[string]struct{}) []string {
	var orphans []string
	for path := range before {
		if _, kept := after[path]; !kept {
			orphans = append(orphans, path)
		}
	}
	sort.Strings(orphans)
	return orphans
}

// Reconcile deletes every path present only in the before set, each
// independently and best-effort. The returned outcomes let callers assert the
// policy; the aggregated error is informational and never blocks a commit.
func (r *Reconciler) Reconcile(ctx context.Context, before, after map[string]struct{}) ([]DeleteOutcome, error) {
	orphans := Orphans(before, after)
	outcomes := make([]DeleteOutcome, 0, len(orphans))
	var errs error

	for _, path := range orphans {
		outcome := DeleteOutcome{Path: path, Result: DeleteOk}
		err := r.store.Delete(ctx, path)
		switch {
		case err == nil:
		case errors.Is(err, storage.ErrNotFound):
			outcome.Result = DeleteNotFound
		default:
			outcome.Result = DeleteFailed
			outcome.Err = err
			errs = multierr.Append(errs, err)
			if r.logg != nil {
				logCtx := r.logg.WithField(ctx, "storage_path", path)
				r.logg.Warn(logCtx, "orphan blob delete failed")
			}
		}
		if r.metrics != nil {
			r.metrics.IncDeleteResult(string(outcome.Result))
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, errs
}
