package mediasync

import (
	"context"
	"time"

	"github.com/lumasites/lumasites-backend/pkg/docstore"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
	"github.com/lumasites/lumasites-backend/pkg/logger"
	"github.com/lumasites/lumasites-backend/pkg/metrics"
	"github.com/lumasites/lumasites-backend/pkg/storage"
)

// Document field names shared with the catalog layer.
const (
	FieldMediaItems = "mediaItems"
	FieldMediaURL   = "mediaURL"
	FieldMediaType  = "mediaType"
	FieldMediaPaths = "mediaPaths"
)

// Deps bundles the collaborators an edit session needs.
type Deps struct {
	Docs       docstore.Store
	Store      storage.Store
	Prober     DurationProber
	Compressor *ImageCompressor
	Logger     *logger.Logger
	Metrics    *metrics.MediaMetrics
}

// Session is one edit of one entity's media collection. It materializes the
// collection from the persisted document, captures the before-paths snapshot
// once, buffers all mutations in memory, and on Save runs the strict pipeline
// upload -> single document write -> best-effort cleanup.
type Session struct {
	ref         docstore.Ref
	cfg         Config
	deps        Deps
	collection  *Collection
	beforePaths map[string]struct{}
	uploader    *Uploader
	reconciler  *Reconciler
}

// OpenSession loads the entity document and reconstructs its collection.
// Legacy rows that recorded only a URL join the collection but are excluded
// from the cleanup snapshot, so their blobs are never auto-deleted.
func OpenSession(ctx context.Context, deps Deps, cfg Config, ref docstore.Ref) (*Session, error) {
	if deps.Docs == nil || deps.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session requires document and blob stores")
	}

	doc, err := deps.Docs.Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	items, paths := MediaFromDoc(doc)

	validator, err := NewValidator(cfg, deps.Prober)
	if err != nil {
		return nil, err
	}
	collection, err := CollectionFromItems(cfg, validator, items, paths)
	if err != nil {
		return nil, err
	}
	uploader, err := NewUploader(cfg, deps.Store, deps.Compressor)
	if err != nil {
		return nil, err
	}

	return &Session{
		ref:         ref,
		cfg:         cfg,
		deps:        deps,
		collection:  collection,
		beforePaths: collection.Snapshot(),
		uploader:    uploader,
		reconciler:  NewReconciler(deps.Store, deps.Logger, deps.Metrics),
	}, nil
}

// Collection exposes the ordered slot list for mutation before Save.
func (s *Session) Collection() *Collection {
	return s.collection
}

// Save drains pending uploads, writes the final ordered array plus the legacy
// mirror and any unrelated field edits in one document update, then deletes
// orphaned blobs best-effort. Any upload failure aborts before the write;
// blobs already uploaded in the attempt stay durable on their slots, so a
// retry passes them through instead of re-uploading.
func (s *Session) Save(ctx context.Context, fieldPatch docstore.Document, onProgress func(percent float64)) (Committed, error) {
	start := time.Now()
	kind := s.ref.Kind
	ctx = s.withLogContext(ctx)

	committed, err := s.uploader.Commit(ctx, s.ref.SiteKey, s.ref.ID, s.collection, onProgress)
	if err != nil {
		s.recordFailure(ctx, kind, "media upload failed", err)
		return Committed{}, err
	}

	patch := docstore.Document{
		FieldMediaItems: committed.Items,
		FieldMediaURL:   committed.PrimaryURL(),
		FieldMediaType:  committed.PrimaryType(),
		FieldMediaPaths: committed.Paths,
	}
	for key, value := range fieldPatch {
		patch[key] = value
	}

	if err := s.deps.Docs.Apply(ctx, s.ref, patch); err != nil {
		// The previous document still references the pre-edit blobs, so no
		// cleanup runs. Freshly uploaded blobs leak until a retry commits.
		s.recordFailure(ctx, kind, "media document write failed", err)
		return Committed{}, err
	}

	after := make(map[string]struct{}, len(committed.Paths))
	for _, path := range committed.Paths {
		if path != "" {
			after[path] = struct{}{}
		}
	}
	_, _ = s.reconciler.Reconcile(ctx, s.beforePaths, after)

	// A second Save in the same session reconciles against the new state.
	s.beforePaths = after

	if s.deps.Metrics != nil {
		s.deps.Metrics.IncSaveSuccess(kind)
		s.deps.Metrics.AddUploadedBytes(kind, committed.UploadedBytes)
		s.deps.Metrics.ObserveSaveDuration(kind, time.Since(start))
	}
	if s.deps.Logger != nil {
		s.deps.Logger.Info(ctx, "media collection committed")
	}
	return committed, nil
}

// Cancel abandons the session: local preview files are released and nothing
// durable changes. Blobs uploaded by a failed earlier Save attempt remain.
func (s *Session) Cancel() {
	s.collection.ReleasePending()
}

func (s *Session) withLogContext(ctx context.Context) context.Context {
	if s.deps.Logger == nil {
		return ctx
	}
	ctx = s.deps.Logger.WithSiteKey(ctx, s.ref.SiteKey)
	return s.deps.Logger.WithEntity(ctx, s.ref.Kind, s.ref.ID)
}

func (s *Session) recordFailure(ctx context.Context, kind, msg string, err error) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.IncSaveFailure(kind)
		s.deps.Metrics.IncOrphanedBlobs(len(s.leakedPaths()))
	}
	if s.deps.Logger != nil {
		s.deps.Logger.Error(ctx, msg, err)
	}
}

// leakedPaths lists blobs made durable by this session that no committed
// document references yet.
func (s *Session) leakedPaths() []string {
	var leaked []string
	for path := range s.collection.Snapshot() {
		if _, ok := s.beforePaths[path]; !ok {
			leaked = append(leaked, path)
		}
	}
	return leaked
}

// MediaFromDoc decodes the persisted media fields. It accepts both the typed
// shapes written by this engine and the generic maps produced by a JSON
// round-trip through the document store.
func MediaFromDoc(doc docstore.Document) ([]Item, []string) {
	var items []Item
	switch raw := doc[FieldMediaItems].(type) {
	case []Item:
		items = append(items, raw...)
	case []any:
		for _, entry := range raw {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			url, _ := m["url"].(string)
			kind, _ := m["type"].(string)
			if url == "" || kind == "" {
				continue
			}
			items = append(items, Item{URL: url, Type: SlotKind(kind)})
		}
	}

	var paths []string
	switch raw := doc[FieldMediaPaths].(type) {
	case []string:
		paths = append(paths, raw...)
	case []any:
		for _, entry := range raw {
			if s, ok := entry.(string); ok {
				paths = append(paths, s)
			} else {
				paths = append(paths, "")
			}
		}
	}

	return items, paths
}
