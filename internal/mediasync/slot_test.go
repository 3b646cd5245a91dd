package mediasync

import (
	"context"
	"os"
	"testing"
	"time"

	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
)

func TestAddImagesKeepsVideoLast(t *testing.T) {
	t.Parallel()

	cfg := testConfig(10, 1, 60*time.Second)
	col := mustCollection(t, cfg, &stubProber{duration: 30 * time.Second})
	ctx := context.Background()

	if err := col.AddVideo(ctx, newVideoFile(t, "clip.mp4")); err != nil {
		t.Fatalf("AddVideo: %v", err)
	}
	if rejections := col.AddImages(ctx, []*LocalFile{newImageFile(t, "a.png"), newImageFile(t, "b.png")}); len(rejections) != 0 {
		t.Fatalf("unexpected rejections: %v", rejections)
	}

	assertKinds(t, col, KindImage, KindImage, KindVideo)
}

func TestAddImagesBoundaryLeavesCollectionUnchanged(t *testing.T) {
	t.Parallel()

	cfg := testConfig(3, 1, 60*time.Second)
	col := mustCollection(t, cfg, &stubProber{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if rejections := col.AddImages(ctx, []*LocalFile{newImageFile(t, "img.png")}); len(rejections) != 0 {
			t.Fatalf("setup rejection: %v", rejections[0].Reason)
		}
	}

	rejections := col.AddImages(ctx, []*LocalFile{newImageFile(t, "overflow.png")})
	if len(rejections) != 1 {
		t.Fatalf("expected one rejection, got %d", len(rejections))
	}
	if !pkgerrors.IsCode(rejections[0].Reason, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", rejections[0].Reason)
	}
	if counts := col.Counts(); counts.Images != 3 {
		t.Fatalf("collection changed by rejected add: %d images", counts.Images)
	}
}

func TestAddVideoRejectsSecondVideo(t *testing.T) {
	t.Parallel()

	cfg := testConfig(5, 1, 60*time.Second)
	prober := &stubProber{duration: 20 * time.Second}
	col := mustCollection(t, cfg, prober)
	ctx := context.Background()

	if err := col.AddVideo(ctx, newVideoFile(t, "first.mp4")); err != nil {
		t.Fatalf("AddVideo: %v", err)
	}
	err := col.AddVideo(ctx, newVideoFile(t, "second.mp4"))
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if counts := col.Counts(); counts.Videos != 1 {
		t.Fatalf("expected one video, got %d", counts.Videos)
	}
}

func TestOverDurationVideoRejectedBeforeAnyUpload(t *testing.T) {
	t.Parallel()

	cfg := testConfig(5, 1, 60*time.Second)
	col := mustCollection(t, cfg, &stubProber{duration: 90 * time.Second})
	ctx := context.Background()

	err := col.AddVideo(ctx, newVideoFile(t, "long.mp4"))
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if col.Len() != 0 {
		t.Fatal("rejected video must not join the collection")
	}

	// A rejected file never reaches the orchestrator, so committing the
	// unchanged collection performs zero network calls.
	store := newFakeBlobStore()
	uploader, err := NewUploader(cfg, store, nil)
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}
	if _, err := uploader.Commit(ctx, "demo", "p1", col, nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if store.uploadCount() != 0 || store.deleteCount() != 0 {
		t.Fatalf("expected zero network calls, got %d uploads %d deletes", store.uploadCount(), store.deleteCount())
	}
}

func TestProbeFailureIsRejection(t *testing.T) {
	t.Parallel()

	cfg := testConfig(5, 1, 60*time.Second)
	col := mustCollection(t, cfg, &stubProber{err: os.ErrInvalid})

	err := col.AddVideo(context.Background(), newVideoFile(t, "corrupt.mp4"))
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unreadable metadata, got %v", err)
	}
}

func TestUnsupportedMIMERejected(t *testing.T) {
	t.Parallel()

	cfg := testConfig(5, 1, 60*time.Second)
	col := mustCollection(t, cfg, &stubProber{})

	file := newImageFile(t, "doc.png")
	file.MIME = "application/pdf"
	rejections := col.AddImages(context.Background(), []*LocalFile{file})
	if len(rejections) != 1 {
		t.Fatalf("expected rejection for unsupported mime, got %d", len(rejections))
	}
}

func TestRemoveAtReleasesPendingLocalFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(5, 1, 60*time.Second)
	col := mustCollection(t, cfg, &stubProber{})
	ctx := context.Background()

	file := newImageFile(t, "temp.png")
	if rejections := col.AddImages(ctx, []*LocalFile{file}); len(rejections) != 0 {
		t.Fatalf("AddImages: %v", rejections[0].Reason)
	}

	if err := col.RemoveAt(0); err != nil {
		t.Fatalf("RemoveAt: %v", err)
	}
	if col.Len() != 0 {
		t.Fatalf("slot not removed")
	}
	if _, err := os.Stat(file.Path); !os.IsNotExist(err) {
		t.Fatalf("pending local file not released: %v", err)
	}
}

func TestMovePreservesSlotIdentity(t *testing.T) {
	t.Parallel()

	cfg := testConfig(5, 1, 60*time.Second)
	col := mustCollection(t, cfg, &stubProber{})
	ctx := context.Background()

	for _, name := range []string{"a.png", "b.png", "c.png"} {
		if rejections := col.AddImages(ctx, []*LocalFile{newImageFile(t, name)}); len(rejections) != 0 {
			t.Fatalf("AddImages %s: %v", name, rejections[0].Reason)
		}
	}

	idOfThird := col.Slots()[2].ID
	col.Move(2, 0)
	if col.Slots()[0].ID != idOfThird {
		t.Fatal("moved slot lost its identity")
	}

	// Out-of-range and equal indices are no-ops.
	before := make([]string, 0, col.Len())
	for _, slot := range col.Slots() {
		before = append(before, slot.ID.String())
	}
	col.Move(1, 1)
	col.Move(-1, 0)
	col.Move(0, 99)
	for i, slot := range col.Slots() {
		if slot.ID.String() != before[i] {
			t.Fatal("no-op move changed order")
		}
	}
}

func TestReplaceSwapsOnlyVideo(t *testing.T) {
	t.Parallel()

	cfg := testConfig(5, 1, 60*time.Second)
	col := mustCollection(t, cfg, &stubProber{duration: 20 * time.Second})
	ctx := context.Background()

	old := newVideoFile(t, "old.mp4")
	if err := col.AddVideo(ctx, old); err != nil {
		t.Fatalf("AddVideo: %v", err)
	}
	oldID := col.Slots()[0].ID

	if err := col.Replace(ctx, 0, newVideoFile(t, "new.mp4")); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if counts := col.Counts(); counts.Videos != 1 {
		t.Fatalf("expected one video after replace, got %d", counts.Videos)
	}
	if col.Slots()[0].ID == oldID {
		t.Fatal("replacement must mint a new slot identity")
	}
	if _, err := os.Stat(old.Path); !os.IsNotExist(err) {
		t.Fatalf("replaced pending file not released: %v", err)
	}
}

func TestReplaceRejectsKindMismatch(t *testing.T) {
	t.Parallel()

	cfg := testConfig(5, 1, 60*time.Second)
	col := mustCollection(t, cfg, &stubProber{duration: 20 * time.Second})
	ctx := context.Background()

	if rejections := col.AddImages(ctx, []*LocalFile{newImageFile(t, "a.png")}); len(rejections) != 0 {
		t.Fatalf("AddImages: %v", rejections[0].Reason)
	}
	kept := col.Slots()[0].ID

	err := col.Replace(ctx, 0, newVideoFile(t, "clip.mp4"))
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if col.Slots()[0].ID != kept {
		t.Fatal("rejected replace changed the collection")
	}
}

func TestCollectionFromItemsRejectsOverCeiling(t *testing.T) {
	t.Parallel()

	cfg := testConfig(1, 1, 60*time.Second)
	validator, err := NewValidator(cfg, &stubProber{})
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	items := []Item{
		{URL: "https://cdn.test/a.jpg", Type: KindImage},
		{URL: "https://cdn.test/b.jpg", Type: KindImage},
	}
	if _, err := CollectionFromItems(cfg, validator, items, nil); err == nil {
		t.Fatal("expected persisted over-ceiling collection to be rejected")
	}
}
