package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lumasites/lumasites-backend/internal/audit"
	"github.com/lumasites/lumasites-backend/internal/mediasync"
	"github.com/lumasites/lumasites-backend/internal/translation"
	"github.com/lumasites/lumasites-backend/pkg/config"
	"github.com/lumasites/lumasites-backend/pkg/docstore"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
	"github.com/lumasites/lumasites-backend/pkg/logger"
)

// Service exposes the entity operations for every kind: plain document CRUD,
// the manifest-driven media save pipeline, and deletion with blob cleanup
// hand-off to the worker.
type Service struct {
	docs       docstore.Store
	media      mediasync.Deps
	mediaCfg   config.MediaConfig
	registry   *mediasync.Registry
	translator translation.Translator
	langs      []string
	publisher  EventPublisher
	locks      SaveLocker
	audit      *audit.Recorder
	logg       *logger.Logger
}

// ServiceParams bundles the service dependencies. Docs and Media.Store are
// required; everything else degrades gracefully when absent.
type ServiceParams struct {
	Docs            docstore.Store
	Media           mediasync.Deps
	MediaConfig     config.MediaConfig
	Registry        *mediasync.Registry
	Translator      translation.Translator
	TargetLanguages []string
	Publisher       EventPublisher
	Locks           SaveLocker
	Audit           *audit.Recorder
	Logger          *logger.Logger
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Docs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog service requires a document store")
	}
	if p.Media.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog service requires a blob store")
	}
	if p.Registry == nil {
		p.Registry = mediasync.NewRegistry()
	}
	media := p.Media
	media.Docs = p.Docs
	return &Service{
		docs:       p.Docs,
		media:      media,
		mediaCfg:   p.MediaConfig,
		registry:   p.Registry,
		translator: p.Translator,
		langs:      p.TargetLanguages,
		publisher:  p.Publisher,
		locks:      p.Locks,
		audit:      p.Audit,
		logg:       p.Logger,
	}, nil
}

// Registry exposes the save registry for progress streaming and cancellation.
func (s *Service) Registry() *mediasync.Registry {
	return s.registry
}

// Create inserts a new entity document and returns its generated ID.
func (s *Service) Create(ctx context.Context, siteKey string, kind Kind, doc docstore.Document) (string, error) {
	if doc == nil {
		doc = docstore.Document{}
	}
	doc = doc.Clone()
	if err := normalizeFields(kind, doc); err != nil {
		return "", err
	}
	id := uuid.NewString()
	ref := docstore.Ref{SiteKey: siteKey, Kind: string(kind), ID: id}
	if err := s.docs.Create(ctx, ref, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns one entity document.
func (s *Service) Get(ctx context.Context, siteKey string, kind Kind, id string) (docstore.Document, error) {
	return s.docs.Get(ctx, docstore.Ref{SiteKey: siteKey, Kind: string(kind), ID: id})
}

// List returns every document of the kind for the site.
func (s *Service) List(ctx context.Context, siteKey string, kind Kind) ([]docstore.Entry, error) {
	return s.docs.List(ctx, siteKey, string(kind))
}

// UpdateFields applies a text-only edit: no media involved, one document
// write. Translations for the new text ride along in the same write.
func (s *Service) UpdateFields(ctx context.Context, siteKey string, kind Kind, id string, patch docstore.Document) error {
	if len(patch) == 0 {
		return nil
	}
	patch = patch.Clone()
	if err := normalizeFields(kind, patch); err != nil {
		return err
	}
	s.translateInto(ctx, patch)
	return s.docs.Apply(ctx, docstore.Ref{SiteKey: siteKey, Kind: string(kind), ID: id}, patch)
}

// Delete removes the entity document and hands its blob paths to the cleanup
// worker. A publish failure leaks the blobs until an operator sweep; the
// document itself is already gone.
func (s *Service) Delete(ctx context.Context, siteKey string, kind Kind, id string) error {
	ref := docstore.Ref{SiteKey: siteKey, Kind: string(kind), ID: id}
	doc, err := s.docs.Delete(ctx, ref)
	if err != nil {
		return err
	}

	_, paths := mediasync.MediaFromDoc(doc)
	event := EntityDeletedEvent{
		SiteKey:  siteKey,
		Kind:     string(kind),
		EntityID: id,
	}
	for _, path := range paths {
		if path != "" {
			event.MediaPaths = append(event.MediaPaths, path)
		}
	}

	if s.publisher == nil || len(event.MediaPaths) == 0 {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding entity deleted event")
	}
	attrs := map[string]string{"siteKey": siteKey, "kind": string(kind)}
	if err := s.publisher.Publish(ctx, payload, attrs); err != nil && s.logg != nil {
		s.logg.Error(ctx, "entity deleted event publish failed", err)
	}
	return nil
}

// SaveRequest is one manifest-driven media edit. Fields carries unrelated
// document edits that must land in the same write as the media arrays.
type SaveRequest struct {
	SaveID   string
	Manifest []ManifestEntry
	Fields   docstore.Document
}

// SaveReceipt acknowledges an accepted save. Rejections lists staged files the
// validator refused; the save proceeds without them.
type SaveReceipt struct {
	SaveID     string
	Rejections []mediasync.Rejection
}

// StartSave validates the manifest synchronously, then runs the upload and
// commit pipeline in the background. Progress streams through the registry
// under the returned save ID.
func (s *Service) StartSave(ctx context.Context, siteKey string, kind Kind, entityID string, req SaveRequest) (SaveReceipt, error) {
	cfg, err := MediaConfigFor(kind, s.mediaCfg)
	if err != nil {
		return SaveReceipt{}, err
	}
	saveID := req.SaveID
	if saveID == "" {
		saveID = uuid.NewString()
	}

	if s.locks != nil {
		acquired, err := s.locks.Acquire(ctx, siteKey, string(kind), entityID)
		if err != nil {
			return SaveReceipt{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquiring save lock")
		}
		if !acquired {
			return SaveReceipt{}, pkgerrors.New(pkgerrors.CodeConflict, "another save is in progress for this entity")
		}
	}
	release := func() {
		if s.locks != nil {
			s.locks.Release(context.WithoutCancel(ctx), siteKey, string(kind), entityID)
		}
	}

	ref := docstore.Ref{SiteKey: siteKey, Kind: string(kind), ID: entityID}
	session, err := mediasync.OpenSession(ctx, s.media, cfg, ref)
	if err != nil {
		release()
		return SaveReceipt{}, err
	}

	rejections, err := applyManifest(ctx, session.Collection(), req.Manifest)
	if err != nil {
		session.Cancel()
		release()
		return SaveReceipt{}, err
	}

	fields := req.Fields.Clone()
	if err := normalizeFields(kind, fields); err != nil {
		session.Cancel()
		release()
		return SaveReceipt{}, err
	}

	// The save must outlive the request; cancellation flows through the
	// registry handle instead.
	handle, err := s.registry.Begin(context.WithoutCancel(ctx), saveID)
	if err != nil {
		session.Cancel()
		release()
		return SaveReceipt{}, err
	}

	before := session.Collection().Snapshot()
	uploads := session.Collection().PendingCount()
	go s.runSave(handle, session, kind, ref, fields, before, uploads, release)

	return SaveReceipt{SaveID: saveID, Rejections: rejections}, nil
}

// CancelSave aborts a running save by ID.
func (s *Service) CancelSave(saveID string) error {
	return s.registry.Cancel(saveID)
}

func (s *Service) runSave(handle *mediasync.Handle, session *mediasync.Session, kind Kind, ref docstore.Ref,
	fields docstore.Document, before map[string]struct{}, uploads int, release func()) {
	defer release()
	start := time.Now()
	ctx := handle.Ctx

	s.translateInto(ctx, fields)

	committed, err := session.Save(ctx, fields, handle.Progress)
	if err != nil {
		session.Cancel()
	}
	s.recordAudit(ctx, kind, ref, session, committed, before, uploads, start, err)
	handle.Finish(err)
}

// translateInto fans the patch's base text out to every target language and
// merges the results into the patch so they commit in the same write.
func (s *Service) translateInto(ctx context.Context, fields docstore.Document) {
	if s.translator == nil || len(s.langs) == 0 {
		return
	}
	title, _ := fields["title"].(string)
	body, _ := fields["body"].(string)
	if translated := translation.FanOut(ctx, s.translator, s.logg, title, body, s.langs); len(translated) > 0 {
		fields["translations"] = translated
	}
}

func (s *Service) recordAudit(ctx context.Context, kind Kind, ref docstore.Ref, session *mediasync.Session,
	committed mediasync.Committed, before map[string]struct{}, uploads int, start time.Time, saveErr error) {
	if s.audit == nil {
		return
	}

	outcome := "succeeded"
	switch {
	case pkgerrors.IsCode(saveErr, pkgerrors.CodeCanceled):
		outcome = "canceled"
	case saveErr != nil:
		outcome = "failed"
	}

	after := make(map[string]struct{}, len(committed.Paths))
	for _, path := range committed.Paths {
		if path != "" {
			after[path] = struct{}{}
		}
	}
	deletes := 0
	if saveErr == nil {
		for path := range before {
			if _, kept := after[path]; !kept {
				deletes++
			}
		}
	}

	counts := session.Collection().Counts()
	s.audit.Record(context.WithoutCancel(ctx), audit.Event{
		SiteKey:     ref.SiteKey,
		EntityKind:  string(kind),
		EntityID:    ref.ID,
		Outcome:     outcome,
		ImageCount:  counts.Images,
		VideoCount:  counts.Videos,
		UploadCount: uploads,
		DeleteCount: deletes,
		DurationMS:  time.Since(start).Milliseconds(),
	})
}

// normalizeFields canonicalizes kind-specific fields before they persist.
// Product prices land as fixed two-decimal strings regardless of how the
// client encoded them.
func normalizeFields(kind Kind, doc docstore.Document) error {
	if kind != KindProduct {
		return nil
	}
	raw, ok := doc["price"]
	if !ok || raw == nil {
		return nil
	}

	var price decimal.Decimal
	var err error
	switch v := raw.(type) {
	case string:
		price, err = decimal.NewFromString(v)
	case float64:
		price = decimal.NewFromFloat(v)
	case int:
		price = decimal.NewFromInt(int64(v))
	case int64:
		price = decimal.NewFromInt(v)
	case json.Number:
		price, err = decimal.NewFromString(v.String())
	case decimal.Decimal:
		price = v
	default:
		err = fmt.Errorf("unsupported price type %T", raw)
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing price")
	}
	if price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}
	doc["price"] = price.StringFixed(2)
	return nil
}
