package mediasync

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lumasites/lumasites-backend/pkg/docstore"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
	"github.com/lumasites/lumasites-backend/pkg/storage"
)

func testConfig(maxImages, maxVideos int, maxDuration time.Duration) Config {
	return Config{
		Kind:             "product",
		MaxImages:        maxImages,
		MaxVideos:        maxVideos,
		MaxVideoDuration: maxDuration,
		ImageMIMEs:       []string{"image/jpeg", "image/png", "image/webp"},
		VideoMIMEs:       []string{"video/mp4", "video/webm"},
		ObjectPath:       DefaultObjectPath("product"),
	}
}

type stubProber struct {
	duration time.Duration
	err      error
	calls    int
}

func (p *stubProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	return p.duration, nil
}

// newImageFile writes a real decodable PNG so the compressor can run on it.
func newImageFile(t *testing.T, name string) *LocalFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write test png: %v", err)
	}
	return &LocalFile{Path: path, MIME: "image/png", Size: int64(buf.Len())}
}

func newVideoFile(t *testing.T, name string) *LocalFile {
	t.Helper()
	payload := bytes.Repeat([]byte{0x42}, 2048)
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write test video: %v", err)
	}
	return &LocalFile{Path: path, MIME: "video/mp4", Size: int64(len(payload))}
}

type uploadRecord struct {
	Path        string
	Size        int64
	ContentType string
}

// fakeBlobStore is an in-memory storage.Store double that records calls.
type fakeBlobStore struct {
	mu          sync.Mutex
	uploads     []uploadRecord
	deletes     []string
	objects     map[string]bool
	failAt      int // 1-based upload index that fails; 0 disables
	deleteFails map[string]error
	missing     map[string]bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects:     make(map[string]bool),
		deleteFails: make(map[string]error),
		missing:     make(map[string]bool),
	}
}

func (f *fakeBlobStore) Upload(ctx context.Context, objectPath string, r io.Reader, size int64, contentType string, progress storage.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}

	f.mu.Lock()
	f.uploads = append(f.uploads, uploadRecord{Path: objectPath, Size: size, ContentType: contentType})
	index := len(f.uploads)
	failAt := f.failAt
	f.mu.Unlock()

	if failAt > 0 && index == failAt {
		return "", errors.New("upload rejected by server")
	}

	if progress != nil {
		progress(size/2, size)
		progress(size, size)
	}

	f.mu.Lock()
	f.objects[objectPath] = true
	f.mu.Unlock()
	return f.PublicURL(objectPath), nil
}

func (f *fakeBlobStore) Ping(ctx context.Context) error { return nil }

func (f *fakeBlobStore) PublicURL(objectPath string) string {
	return "https://cdn.test/" + objectPath
}

func (f *fakeBlobStore) Delete(ctx context.Context, objectPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, objectPath)
	if err, ok := f.deleteFails[objectPath]; ok {
		return err
	}
	if f.missing[objectPath] || !f.objects[objectPath] {
		return storage.ErrNotFound
	}
	delete(f.objects, objectPath)
	return nil
}

func (f *fakeBlobStore) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *fakeBlobStore) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deletes)
}

// fakeDocStore is a map-backed docstore.Store with Apply merge semantics.
type fakeDocStore struct {
	mu       sync.Mutex
	docs     map[string]docstore.Document
	applies  int
	applyErr error
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: make(map[string]docstore.Document)}
}

func (f *fakeDocStore) key(ref docstore.Ref) string {
	return ref.String()
}

func (f *fakeDocStore) Get(ctx context.Context, ref docstore.Ref) (docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[f.key(ref)]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	return doc.Clone(), nil
}

func (f *fakeDocStore) Create(ctx context.Context, ref docstore.Ref, doc docstore.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[f.key(ref)] = doc.Clone()
	return nil
}

func (f *fakeDocStore) Apply(ctx context.Context, ref docstore.Ref, patch docstore.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	doc, ok := f.docs[f.key(ref)]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	merged := doc.Clone()
	for k, v := range patch {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	f.docs[f.key(ref)] = merged
	f.applies++
	return nil
}

func (f *fakeDocStore) Delete(ctx context.Context, ref docstore.Ref) (docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[f.key(ref)]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	delete(f.docs, f.key(ref))
	return doc, nil
}

func (f *fakeDocStore) List(ctx context.Context, siteKey, kind string) ([]docstore.Entry, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDocStore) snapshot(ref docstore.Ref) docstore.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[f.key(ref)]
	if !ok {
		return nil
	}
	return doc.Clone()
}

func mustCollection(t *testing.T, cfg Config, prober DurationProber) *Collection {
	t.Helper()
	validator, err := NewValidator(cfg, prober)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	col, err := NewCollection(cfg, validator)
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	return col
}

func itemURLs(items []Item) []string {
	urls := make([]string, 0, len(items))
	for _, item := range items {
		urls = append(urls, item.URL)
	}
	return urls
}

func assertKinds(t *testing.T, col *Collection, want ...SlotKind) {
	t.Helper()
	slots := col.Slots()
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(slots))
	}
	for i, kind := range want {
		if slots[i].Kind != kind {
			t.Fatalf("slot %d: expected %s, got %s", i, kind, slots[i].Kind)
		}
	}
}
