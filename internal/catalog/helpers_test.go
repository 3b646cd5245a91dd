package catalog

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lumasites/lumasites-backend/internal/mediasync"
	"github.com/lumasites/lumasites-backend/pkg/config"
	"github.com/lumasites/lumasites-backend/pkg/docstore"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
	"github.com/lumasites/lumasites-backend/pkg/storage"
)

func testMediaConfig() config.MediaConfig {
	return config.MediaConfig{
		ImageMaxDimension: 64,
		ImageMaxBytes:     1 << 20,
		ImageQuality:      80,

		ProductMaxImages:    10,
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
	}
}

type stubProber struct {
	duration time.Duration
}

func (p *stubProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	return p.duration, nil
}

func newImageFile(t *testing.T, name string) *mediasync.LocalFile {
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
	path := t.TempDir() + "/" + name
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("writing test image: %v", err)
	}
	return &mediasync.LocalFile{Path: path, MIME: "image/png", Size: int64(buf.Len())}
}

func newVideoFile(t *testing.T, name string) *mediasync.LocalFile {
	t.Helper()
	path := t.TempDir() + "/" + name
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xAB}, 2048), 0o600); err != nil {
		t.Fatalf("writing test video: %v", err)
	}
	return &mediasync.LocalFile{Path: path, MIME: "video/mp4", Size: 2048}
}

// memDocs is an in-memory docstore.Store.
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

// memBlobs is an in-memory storage.Store.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string]bool
	deletes []string
	uploads []string
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
	b.uploads = append(b.uploads, objectPath)
	b.mu.Unlock()
	return b.PublicURL(objectPath), nil
}

func (b *memBlobs) Delete(ctx context.Context, objectPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, objectPath)
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

func (b *memBlobs) deleteCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.deletes)
}

type capturedEvent struct {
	data  []byte
	attrs map[string]string
}

type stubPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
	err    error
}

func (p *stubPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, capturedEvent{data: data, attrs: attrs})
	return nil
}

// signalLocker grants the lock and closes released once the save lets go.
type signalLocker struct {
	denied   bool
	released chan struct{}
	once     sync.Once
}

func newSignalLocker() *signalLocker {
	return &signalLocker{released: make(chan struct{})}
}

func (l *signalLocker) Acquire(ctx context.Context, siteKey, kind, entityID string) (bool, error) {
	return !l.denied, nil
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

type stubTranslator struct{}

func (stubTranslator) Translate(ctx context.Context, title, body, lang string) (string, string, error) {
	return title + " [" + lang + "]", body + " [" + lang + "]", nil
}

func newTestService(t *testing.T, docs *memDocs, blobs *memBlobs, locker SaveLocker, publisher EventPublisher) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Docs: docs,
		Media: mediasync.Deps{
			Store:      blobs,
			Prober:     &stubProber{duration: 10 * time.Second},
			Compressor: mediasync.NewImageCompressor(64, 1<<20, 80),
		},
		MediaConfig:     testMediaConfig(),
		Translator:      stubTranslator{},
		TargetLanguages: []string{"es", "fr"},
		Publisher:       publisher,
		Locks:           locker,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}
