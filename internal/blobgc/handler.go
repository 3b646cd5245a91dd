// Package blobgc sweeps storage blobs left behind by deleted entities. The
// catalog publishes an event carrying the document's media paths at delete
// time; this worker consumes it and removes the blobs with the same
// classification policy the save pipeline uses.
package blobgc

import (
	"context"
	"encoding/json"

	"github.com/lumasites/lumasites-backend/internal/catalog"
	"github.com/lumasites/lumasites-backend/internal/mediasync"
	"github.com/lumasites/lumasites-backend/pkg/logger"
	"github.com/lumasites/lumasites-backend/pkg/metrics"
	"github.com/lumasites/lumasites-backend/pkg/storage"
)

// Handler processes one entity-deleted event. Returning an error requests
// redelivery; nil acknowledges the message.
type Handler struct {
	reconciler *mediasync.Reconciler
	logg       *logger.Logger
}

func NewHandler(store storage.Store, logg *logger.Logger, m *metrics.MediaMetrics) *Handler {
	return &Handler{
		reconciler: mediasync.NewReconciler(store, logg, m),
		logg:       logg,
	}
}

// Handle deletes every blob the event lists. A payload that does not decode
// is acknowledged; redelivering it can never succeed. Transient delete
// failures surface as an error so the message is retried, while already-gone
// blobs count as done.
func (h *Handler) Handle(ctx context.Context, data []byte) error {
	var event catalog.EntityDeletedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		if h.logg != nil {
			h.logg.Warn(ctx, "dropping undecodable entity deleted event")
		}
		return nil
	}
	if len(event.MediaPaths) == 0 {
		return nil
	}

	if h.logg != nil {
		ctx = h.logg.WithSiteKey(ctx, event.SiteKey)
		ctx = h.logg.WithEntity(ctx, event.Kind, event.EntityID)
	}

	doomed := make(map[string]struct{}, len(event.MediaPaths))
	for _, path := range event.MediaPaths {
		if path != "" {
			doomed[path] = struct{}{}
		}
	}

	outcomes, _ := h.reconciler.Reconcile(ctx, doomed, nil)
	for _, outcome := range outcomes {
		if outcome.Result == mediasync.DeleteFailed {
			return outcome.Err
		}
	}
	if h.logg != nil {
		h.logg.Info(ctx, "entity blobs swept")
	}
	return nil
}
