package mediasync

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
	"github.com/lumasites/lumasites-backend/pkg/storage"
)

// TaskState is the lifecycle of one pending slot's upload during a save.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskCanceled  TaskState = "canceled"
)

// Task tracks byte progress for one pending slot. Tasks exist only for the
// duration of a save attempt and are never persisted.
type Task struct {
	SlotID           uuid.UUID
	BytesTotal       int64
	BytesTransferred int64
	State            TaskState
}

// OverallPercent aggregates per-task progress into a single 0-100 figure.
// Uploads run sequentially, so the formula is additive: finished tasks count
// as whole units and the running task contributes its byte fraction. A save
// with nothing pending is already at 100.
func OverallPercent(tasks []Task) float64 {
	if len(tasks) == 0 {
		return 100
	}
	done := 0.0
	for _, task := range tasks {
		switch task.State {
		case TaskSucceeded:
			done++
		case TaskRunning:
			if task.BytesTotal > 0 {
				done += float64(task.BytesTransferred) / float64(task.BytesTotal)
			}
		}
	}
	pct := 100 * done / float64(len(tasks))
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Committed is the outcome of a successful upload pass: the final ordered
// items plus the storage paths running parallel to them. Paths are empty for
// legacy rows whose key was never recorded.
type Committed struct {
	Items []Item
	Paths []string
	// UploadedBytes totals the bytes actually transferred by this pass.
	UploadedBytes int64
}

// PrimaryURL returns the legacy mirror of the first element.
func (c Committed) PrimaryURL() string {
	if len(c.Items) == 0 {
		return ""
	}
	return c.Items[0].URL
}

// PrimaryType returns the legacy mirror of the first element's kind.
func (c Committed) PrimaryType() string {
	if len(c.Items) == 0 {
		return ""
	}
	return string(c.Items[0].Type)
}

// Uploader drains a collection's pending slots at save time. Existing slots
// pass through with zero network calls; pending ones upload sequentially in
// final display order so the aggregate percentage stays a simple sum.
type Uploader struct {
	cfg        Config
	store      storage.Store
	compressor *ImageCompressor
}

// NewUploader wires the orchestrator to a blob store backend.
func NewUploader(cfg Config, store storage.Store, compressor *ImageCompressor) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "uploader requires a blob store")
	}
	if compressor == nil {
		compressor = NewImageCompressor(0, 0, 0)
	}
	return &Uploader{cfg: cfg, store: store, compressor: compressor}, nil
}

// Commit walks the collection once in final order. Any slot failure or
// context cancellation aborts the whole pass with no document write; blobs
// uploaded earlier in the attempt are left behind (the caller records the
// leak). On success every slot is durable and the collection is
// existing-only.
func (u *Uploader) Commit(ctx context.Context, siteKey, entityID string, col *Collection, onProgress func(percent float64)) (Committed, error) {
	if col == nil {
		return Committed{}, pkgerrors.New(pkgerrors.CodeValidation, "no collection to commit")
	}

	slots := col.Slots()
	tasks := make([]Task, 0, col.PendingCount())
	taskIndex := make(map[uuid.UUID]int, col.PendingCount())
	// Keys held by retained slots are off limits for new uploads; a removed
	// slot's blob may only vanish in the cleanup phase, never by overwrite.
	usedPaths := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		if slot.Origin == OriginPending {
			taskIndex[slot.ID] = len(tasks)
			tasks = append(tasks, Task{SlotID: slot.ID, State: TaskQueued})
			continue
		}
		if slot.StoragePath != "" {
			usedPaths[slot.StoragePath] = struct{}{}
		}
	}

	emit := func() {
		if onProgress != nil {
			onProgress(OverallPercent(tasks))
		}
	}
	// With nothing pending there is no upload phase to report on.
	if len(tasks) > 0 {
		emit()
	}

	committed := Committed{
		Items: make([]Item, 0, len(slots)),
		Paths: make([]string, 0, len(slots)),
	}

	for position, slot := range slots {
		if slot.Origin == OriginExisting {
			committed.Items = append(committed.Items, Item{URL: slot.URL, Type: slot.Kind})
			committed.Paths = append(committed.Paths, slot.StoragePath)
			continue
		}

		task := &tasks[taskIndex[slot.ID]]
		task.State = TaskRunning

		url, path, err := u.uploadSlot(ctx, siteKey, entityID, position, slot, task, usedPaths, emit)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				task.State = TaskCanceled
				return Committed{}, pkgerrors.Wrap(pkgerrors.CodeCanceled, err, "media save canceled")
			}
			task.State = TaskFailed
			return Committed{}, err
		}
		task.State = TaskSucceeded
		committed.UploadedBytes += task.BytesTotal
		emit()

		// The slot is durable now; a later re-save passes it through.
		local := slot.Local
		slot.Origin = OriginExisting
		slot.URL = url
		slot.StoragePath = path
		slot.Local = nil
		_ = local.Release()

		committed.Items = append(committed.Items, Item{URL: url, Type: slot.Kind})
		committed.Paths = append(committed.Paths, path)
	}

	return committed, nil
}

func (u *Uploader) uploadSlot(ctx context.Context, siteKey, entityID string, position int, slot *Slot, task *Task, usedPaths map[string]struct{}, emit func()) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	file := slot.Local
	if file == nil {
		return "", "", pkgerrors.New(pkgerrors.CodeInternal, "pending slot has no local file")
	}

	// Images are re-encoded before upload; videos go up as-is.
	upload := file
	if slot.Kind == KindImage {
		compressed, err := u.compressor.Compress(file)
		if err != nil {
			return "", "", err
		}
		defer func() { _ = compressed.Release() }()
		upload = compressed
	}

	ext, err := ExtensionForMIME(upload.MIME)
	if err != nil {
		return "", "", err
	}
	path := u.claimPath(siteKey, entityID, position, ext, usedPaths)

	f, err := os.Open(upload.Path)
	if err != nil {
		return "", "", fmt.Errorf("open staged file: %w", err)
	}
	defer func() { _ = f.Close() }()

	size := upload.Size
	if size <= 0 {
		info, statErr := f.Stat()
		if statErr != nil {
			return "", "", fmt.Errorf("stat staged file: %w", statErr)
		}
		size = info.Size()
	}
	task.BytesTotal = size

	url, err := u.store.Upload(ctx, path, f, size, upload.MIME, func(transferred, total int64) {
		task.BytesTransferred = transferred
		emit()
	})
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload media")
	}
	return url, path, nil
}

// claimPath derives the slot's storage key from its position, walking forward
// past indices whose key a retained slot still holds. The chosen key is
// reserved so later slots in the same pass cannot collide with it either.
func (u *Uploader) claimPath(siteKey, entityID string, position int, ext string, usedPaths map[string]struct{}) string {
	for index := position; ; index++ {
		path := u.cfg.ObjectPath(siteKey, entityID, index, ext)
		if _, taken := usedPaths[path]; !taken {
			usedPaths[path] = struct{}{}
			return path
		}
	}
}
