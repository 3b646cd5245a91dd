package controllers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumasites/lumasites-backend/internal/catalog"
	"github.com/lumasites/lumasites-backend/internal/mediasync"
	"github.com/lumasites/lumasites-backend/pkg/config"
	"github.com/lumasites/lumasites-backend/pkg/docstore"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
	"github.com/lumasites/lumasites-backend/pkg/storage"
)

// newEntityRouter mounts a handler under the site-scoped entity routes so
// chi's URL params resolve the way they do in production.
func newEntityRouter(method, pattern string, handler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Method(method, pattern, handler)
	return r
}

type memDocs struct {
	mu   sync.Mutex
	docs map[string]docstore.Document
}

func newMemDocs() *memDocs {
	return &memDocs{docs: make(map[string]docstore.Document)}
}

func (m *memDocs) Get(ctx context.Context, ref docstore.Ref) (docstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[ref.String()]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	return doc.Clone(), nil
}

func (m *memDocs) Create(ctx context.Context, ref docstore.Ref, doc docstore.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[ref.String()]; exists {
		return pkgerrors.New(pkgerrors.CodeConflict, "document exists")
	}
	m.docs[ref.String()] = doc.Clone()
	return nil
}

func (m *memDocs) Apply(ctx context.Context, ref docstore.Ref, patch docstore.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[ref.String()]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	merged := doc.Clone()
	for key, value := range patch {
		if value == nil {
			delete(merged, key)
			continue
		}
		merged[key] = value
	}
	m.docs[ref.String()] = merged
	return nil
}

func (m *memDocs) Delete(ctx context.Context, ref docstore.Ref) (docstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[ref.String()]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	delete(m.docs, ref.String())
	return doc, nil
}

func (m *memDocs) List(ctx context.Context, siteKey, kind string) ([]docstore.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := siteKey + "/" + kind + "/"
	var entries []docstore.Entry
	for key, doc := range m.docs {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entries = append(entries, docstore.Entry{
			Ref: docstore.Ref{SiteKey: siteKey, Kind: kind, ID: strings.TrimPrefix(key, prefix)},
			Doc: doc.Clone(),
		})
	}
	return entries, nil
}

func (m *memDocs) snapshot(ref docstore.Ref) docstore.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[ref.String()]
	if !ok {
		return nil
	}
	return doc.Clone()
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string]bool
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string]bool)}
}

func (b *memBlobs) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string, progress storage.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	if progress != nil {
		progress(size, size)
	}
	b.mu.Lock()
	b.objects[objectPath] = true
	b.mu.Unlock()
	return b.PublicURL(objectPath), nil
}

func (b *memBlobs) Delete(ctx context.Context, objectPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.objects[objectPath] {
		return storage.ErrNotFound
	}
	delete(b.objects, objectPath)
	return nil
}

func (b *memBlobs) PublicURL(objectPath string) string {
	return "https://cdn.test/" + objectPath
}

func (b *memBlobs) Ping(ctx context.Context) error {
	return nil
}

type stubProber struct{}

func (stubProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	return 10 * time.Second, nil
}

// signalLocker grants the lock and closes released once the save lets go.
type signalLocker struct {
	released chan struct{}
	once     sync.Once
}

func newSignalLocker() *signalLocker {
	return &signalLocker{released: make(chan struct{})}
}

func (l *signalLocker) Acquire(ctx context.Context, siteKey, kind, entityID string) (bool, error) {
	return true, nil
}

func (l *signalLocker) Release(ctx context.Context, siteKey, kind, entityID string) {
	l.once.Do(func() { close(l.released) })
}

func (l *signalLocker) waitReleased(t *testing.T) {
	t.Helper()
	select {
	case <-l.released:
	case <-time.After(5 * time.Second):
		t.Fatal("save did not release its lock")
	}
}

func newCatalogService(t *testing.T, docs *memDocs, blobs *memBlobs, locker catalog.SaveLocker) *catalog.Service {
	t.Helper()
	svc, err := catalog.NewService(catalog.ServiceParams{
		Docs: docs,
		Media: mediasync.Deps{
			Store:      blobs,
			Prober:     stubProber{},
			Compressor: mediasync.NewImageCompressor(64, 1<<20, 80),
		},
		MediaConfig: config.MediaConfig{
			ImageMaxDimension: 64,
			ImageMaxBytes:     1 << 20,
			ImageQuality:      80,
			ProductMaxImages:  10,

			ProductVideoSeconds: 30,
			SectionMaxImages:    6,
			SectionVideoSeconds: 30,
			ProjectMaxImages:    12,
			ProjectVideoSeconds: 60,
			HeroMaxImages:       1,
			HeroVideoSeconds:    60,
			StaffMaxImages:      1,
			StoreMaxImages:      8,
			StoreVideoSeconds:   120,
		},
		Locks: locker,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}
