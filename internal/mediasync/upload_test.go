package mediasync

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
)

func TestOverallPercentAggregation(t *testing.T) {
	t.Parallel()

	if pct := OverallPercent(nil); pct != 100 {
		t.Fatalf("no tasks should be 100%%, got %f", pct)
	}

	tasks := []Task{
		{SlotID: uuid.New(), State: TaskSucceeded},
		{SlotID: uuid.New(), State: TaskRunning, BytesTotal: 100, BytesTransferred: 50},
		{SlotID: uuid.New(), State: TaskQueued},
		{SlotID: uuid.New(), State: TaskQueued},
	}
	if pct := OverallPercent(tasks); pct != 37.5 {
		t.Fatalf("expected 37.5, got %f", pct)
	}

	tasks[1].State = TaskFailed
	if pct := OverallPercent(tasks); pct != 25 {
		t.Fatalf("failed task must not contribute, got %f", pct)
	}
}

func TestCommitSequentialInFinalOrderWithProgress(t *testing.T) {
	t.Parallel()

	cfg := testConfig(10, 1, 60*time.Second)
	col := mustCollection(t, cfg, &stubProber{duration: 30 * time.Second})
	ctx := context.Background()

	// One durable slot, then two pending uploads.
	existing, err := CollectionFromItems(cfg, col.validator,
		[]Item{{URL: "https://cdn.test/sites/demo/product/p1/0.jpg", Type: KindImage}},
		[]string{"sites/demo/product/p1/0.jpg"})
	if err != nil {
		t.Fatalf("CollectionFromItems: %v", err)
	}
	col = existing

	if rejections := col.AddImages(ctx, []*LocalFile{newImageFile(t, "new.png")}); len(rejections) != 0 {
		t.Fatalf("AddImages: %v", rejections[0].Reason)
	}
	if err := col.AddVideo(ctx, newVideoFile(t, "clip.mp4")); err != nil {
		t.Fatalf("AddVideo: %v", err)
	}

	store := newFakeBlobStore()
	uploader, err := NewUploader(cfg, store, NewImageCompressor(64, 1<<20, 80))
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}

	var percents []float64
	committed, err := uploader.Commit(ctx, "demo", "p1", col, func(pct float64) {
		percents = append(percents, pct)
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if store.uploadCount() != 2 {
		t.Fatalf("existing slot must pass through; expected 2 uploads, got %d", store.uploadCount())
	}
	// Upload order equals final display order: image at index 1, video at 2.
	if !strings.HasSuffix(store.uploads[0].Path, "/1.jpg") {
		t.Fatalf("first upload path %q not at position 1 as jpg", store.uploads[0].Path)
	}
	if !strings.HasSuffix(store.uploads[1].Path, "/2.mp4") {
		t.Fatalf("second upload path %q not at position 2 as mp4", store.uploads[1].Path)
	}
	if store.uploads[0].ContentType != "image/jpeg" {
		t.Fatalf("image not normalized to jpeg: %s", store.uploads[0].ContentType)
	}

	if len(committed.Items) != 3 {
		t.Fatalf("expected 3 committed items, got %d", len(committed.Items))
	}
	if committed.PrimaryURL() != committed.Items[0].URL || committed.PrimaryType() != "image" {
		t.Fatalf("legacy mirror mismatch: %s %s", committed.PrimaryURL(), committed.PrimaryType())
	}

	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Fatalf("expected progress ending at 100, got %v", percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress regressed: %v", percents)
		}
	}

	// After commit every slot is durable; a re-save uploads nothing.
	for _, slot := range col.Slots() {
		if slot.Origin != OriginExisting || slot.StoragePath == "" {
			t.Fatalf("slot %s not durable after commit", slot.ID)
		}
	}
}

func TestCommitRemoveThenAddNeverOverwritesRetainedBlob(t *testing.T) {
	t.Parallel()

	// Entity holds A at 0.jpg and B at 1.jpg; the edit removes A and adds C.
	// C lands at position 1, whose key B still owns, so C must claim the next
	// free index instead of uploading over B's bytes.
	cfg := testConfig(10, 1, 60*time.Second)
	validator, err := NewValidator(cfg, &stubProber{})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	col, err := CollectionFromItems(cfg,
		validator,
		[]Item{
			{URL: "https://cdn.test/sites/demo/product/p1/0.jpg", Type: KindImage},
			{URL: "https://cdn.test/sites/demo/product/p1/1.jpg", Type: KindImage},
		},
		[]string{"sites/demo/product/p1/0.jpg", "sites/demo/product/p1/1.jpg"})
	if err != nil {
		t.Fatalf("CollectionFromItems: %v", err)
	}
	if err := col.RemoveAt(0); err != nil {
		t.Fatalf("RemoveAt: %v", err)
	}
	if rejections := col.AddImages(context.Background(), []*LocalFile{newImageFile(t, "c.png")}); len(rejections) != 0 {
		t.Fatalf("AddImages: %v", rejections[0].Reason)
	}

	store := newFakeBlobStore()
	store.objects["sites/demo/product/p1/0.jpg"] = true
	store.objects["sites/demo/product/p1/1.jpg"] = true
	uploader, err := NewUploader(cfg, store, NewImageCompressor(64, 1<<20, 80))
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}

	committed, err := uploader.Commit(context.Background(), "demo", "p1", col, nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if store.uploadCount() != 1 {
		t.Fatalf("expected one upload, got %d", store.uploadCount())
	}
	if store.uploads[0].Path == "sites/demo/product/p1/1.jpg" {
		t.Fatalf("new upload reused retained key %q", store.uploads[0].Path)
	}
	if store.uploads[0].Path != "sites/demo/product/p1/2.jpg" {
		t.Fatalf("expected next free index, got %q", store.uploads[0].Path)
	}

	want := []string{"sites/demo/product/p1/1.jpg", "sites/demo/product/p1/2.jpg"}
	if !reflect.DeepEqual(committed.Paths, want) {
		t.Fatalf("committed paths %v, want %v", committed.Paths, want)
	}
	if committed.Items[0].URL == committed.Items[1].URL {
		t.Fatalf("duplicate URL committed: %v", itemURLs(committed.Items))
	}
}

func TestCommitWithNoPendingSlotsIsIdempotent(t *testing.T) {
	t.Parallel()

	cfg := testConfig(10, 1, 60*time.Second)
	validator, err := NewValidator(cfg, &stubProber{})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	col, err := CollectionFromItems(cfg, validator,
		[]Item{{URL: "https://cdn.test/a.jpg", Type: KindImage}},
		[]string{"sites/demo/product/p1/0.jpg"})
	if err != nil {
		t.Fatalf("CollectionFromItems: %v", err)
	}

	store := newFakeBlobStore()
	uploader, err := NewUploader(cfg, store, nil)
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}

	var percents []float64
	first, err := uploader.Commit(context.Background(), "demo", "p1", col, func(pct float64) {
		percents = append(percents, pct)
	})
	if err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	second, err := uploader.Commit(context.Background(), "demo", "p1", col, nil)
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}

	if store.uploadCount() != 0 || store.deleteCount() != 0 {
		t.Fatalf("idempotent commit made network calls: %d uploads %d deletes", store.uploadCount(), store.deleteCount())
	}
	// No upload phase, no progress events; the save settles straight to its
	// terminal state.
	if len(percents) != 0 {
		t.Fatalf("no-pending commit emitted progress: %v", percents)
	}
	if len(first.Items) != len(second.Items) || first.Items[0] != second.Items[0] {
		t.Fatalf("commit results differ: %v vs %v", first.Items, second.Items)
	}
}

func TestCommitFailureAbortsWholeSave(t *testing.T) {
	t.Parallel()

	cfg := testConfig(10, 1, 60*time.Second)
	col := mustCollection(t, cfg, &stubProber{})
	ctx := context.Background()

	files := []*LocalFile{newImageFile(t, "a.png"), newImageFile(t, "b.png")}
	if rejections := col.AddImages(ctx, files); len(rejections) != 0 {
		t.Fatalf("AddImages: %v", rejections[0].Reason)
	}

	store := newFakeBlobStore()
	store.failAt = 2
	uploader, err := NewUploader(cfg, store, NewImageCompressor(64, 1<<20, 80))
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}

	_, err = uploader.Commit(ctx, "demo", "p1", col, nil)
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	// The blob uploaded before the failure is left behind, never deleted here.
	if store.deleteCount() != 0 {
		t.Fatalf("failed commit must not clean up, got %d deletes", store.deleteCount())
	}
}

func TestCommitCancellation(t *testing.T) {
	t.Parallel()

	cfg := testConfig(10, 1, 60*time.Second)
	col := mustCollection(t, cfg, &stubProber{})

	if rejections := col.AddImages(context.Background(), []*LocalFile{newImageFile(t, "a.png")}); len(rejections) != 0 {
		t.Fatalf("AddImages: %v", rejections[0].Reason)
	}

	store := newFakeBlobStore()
	uploader, err := NewUploader(cfg, store, NewImageCompressor(64, 1<<20, 80))
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = uploader.Commit(ctx, "demo", "p1", col, nil)
	if !pkgerrors.IsCode(err, pkgerrors.CodeCanceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
}
