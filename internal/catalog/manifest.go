package catalog

import (
	"context"
	"fmt"

	"github.com/lumasites/lumasites-backend/internal/mediasync"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
)

// ManifestEntry describes one slot of the desired final collection. An entry
// either references a slot that already exists (by its index in the collection
// as loaded) or carries a staged local file to upload.
type ManifestEntry struct {
	Existing *int
	File     *mediasync.LocalFile
	Kind     mediasync.SlotKind
}

// applyManifest mutates the collection to match the manifest: existing slots
// absent from the manifest are removed, staged files are added, and the
// surviving slots are reordered into manifest order. Files the validator
// rejects are reported and simply omitted from the final order.
func applyManifest(ctx context.Context, col *mediasync.Collection, manifest []ManifestEntry) ([]mediasync.Rejection, error) {
	original := append([]*mediasync.Slot(nil), col.Slots()...)

	referenced := make(map[int]bool, len(manifest))
	for _, entry := range manifest {
		switch {
		case entry.Existing != nil:
			index := *entry.Existing
			if index < 0 || index >= len(original) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("manifest references slot %d of %d", index, len(original)))
			}
			if referenced[index] {
				return nil, pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("manifest references slot %d twice", index))
			}
			referenced[index] = true
		case entry.File != nil:
			if entry.Kind != mediasync.KindImage && entry.Kind != mediasync.KindVideo {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "staged manifest entry requires a media kind")
			}
		default:
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "manifest entry is neither existing nor staged")
		}
	}

	// Drop unreferenced existing slots first so their ceiling room frees up
	// before new files are validated.
	for i := len(original) - 1; i >= 0; i-- {
		if referenced[i] {
			continue
		}
		if index := slotIndex(col, original[i]); index >= 0 {
			if err := col.RemoveAt(index); err != nil {
				return nil, err
			}
		}
	}

	var rejections []mediasync.Rejection
	desired := make([]*mediasync.Slot, 0, len(manifest))
	for _, entry := range manifest {
		if entry.Existing != nil {
			desired = append(desired, original[*entry.Existing])
			continue
		}
		switch entry.Kind {
		case mediasync.KindImage:
			if rejected := col.AddImages(ctx, []*mediasync.LocalFile{entry.File}); len(rejected) > 0 {
				rejections = append(rejections, rejected...)
				continue
			}
		case mediasync.KindVideo:
			if err := col.AddVideo(ctx, entry.File); err != nil {
				rejections = append(rejections, mediasync.Rejection{File: entry.File, Reason: err})
				continue
			}
		}
		slot := slotForFile(col, entry.File)
		if slot == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "accepted file has no slot")
		}
		desired = append(desired, slot)
	}

	for target, want := range desired {
		if current := slotIndex(col, want); current >= 0 {
			col.Move(current, target)
		}
	}
	return rejections, nil
}

func slotIndex(col *mediasync.Collection, slot *mediasync.Slot) int {
	for i, s := range col.Slots() {
		if s == slot {
			return i
		}
	}
	return -1
}

func slotForFile(col *mediasync.Collection, file *mediasync.LocalFile) *mediasync.Slot {
	for _, s := range col.Slots() {
		if s.Local == file {
			return s
		}
	}
	return nil
}
