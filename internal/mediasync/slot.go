package mediasync

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
)

// SlotKind distinguishes image and video slots. Immutable once a slot exists.
type SlotKind string

const (
	KindImage SlotKind = "image"
	KindVideo SlotKind = "video"
)

// Origin tells whether a slot is already durable or still a local file.
type Origin string

const (
	OriginExisting Origin = "existing"
	OriginPending  Origin = "pending"
)

// LocalFile is a candidate file staged on local disk for the duration of an
// edit session. Release removes it; releasing twice is safe.
type LocalFile struct {
	Path     string
	MIME     string
	Size     int64
	released bool
}

func (f *LocalFile) Release() error {
	if f == nil || f.released {
		return nil
	}
	f.released = true
	if f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Slot is one entry in an ordered media collection. The stable ID survives
// moves so callers can key rows without remounting.
type Slot struct {
	ID          uuid.UUID
	Kind        SlotKind
	Origin      Origin
	URL         string
	StoragePath string
	Local       *LocalFile
}

// Item is the persisted shape of a committed slot.
type Item struct {
	URL  string   `json:"url"`
	Type SlotKind `json:"type"`
}

// Counts holds the current slot tallies used by validation.
type Counts struct {
	Images int
	Videos int
}

// Rejection records why a candidate file was not added.
type Rejection struct {
	File   *LocalFile
	Reason error
}

// Collection is the in-memory ordered media list being edited. All mutations
// are synchronous and keep the configured ceilings invariant; the blob store
// is never touched before Save.
type Collection struct {
	cfg       Config
	validator *Validator
	slots     []*Slot
}

// NewCollection builds an empty collection for the given config.
func NewCollection(cfg Config, validator *Validator) (*Collection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if validator == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "collection requires a validator")
	}
	return &Collection{cfg: cfg, validator: validator}, nil
}

// CollectionFromItems materializes a collection from the persisted array.
// Paths run parallel to items; a missing or empty path marks a legacy row
// whose blob cannot be cleaned up.
func CollectionFromItems(cfg Config, validator *Validator, items []Item, paths []string) (*Collection, error) {
	c, err := NewCollection(cfg, validator)
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		path := ""
		if i < len(paths) {
			path = paths[i]
		}
		c.slots = append(c.slots, &Slot{
			ID:          uuid.New(),
			Kind:        item.Type,
			Origin:      OriginExisting,
			URL:         item.URL,
			StoragePath: path,
		})
	}
	if counts := c.Counts(); counts.Images > cfg.MaxImages || counts.Videos > cfg.MaxVideos {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("persisted collection exceeds ceilings (%d images, %d videos)", counts.Images, counts.Videos))
	}
	return c, nil
}

// Counts tallies slots by kind.
func (c *Collection) Counts() Counts {
	var counts Counts
	for _, slot := range c.slots {
		switch slot.Kind {
		case KindImage:
			counts.Images++
		case KindVideo:
			counts.Videos++
		}
	}
	return counts
}

// Len returns the number of slots.
func (c *Collection) Len() int {
	return len(c.slots)
}

// Slots returns the ordered slot list. Callers must not reorder it directly.
func (c *Collection) Slots() []*Slot {
	return c.slots
}

// AddImages validates each candidate in order and inserts the accepted ones
// as pending slots. When a video slot exists, images are inserted before it so
// the video stays last in the carousel. Rejected files are reported without
// affecting the accepted ones.
func (c *Collection) AddImages(ctx context.Context, files []*LocalFile) []Rejection {
	var rejections []Rejection
	for _, file := range files {
		kind, err := c.validator.Validate(ctx, file, c.Counts())
		if err != nil {
			rejections = append(rejections, Rejection{File: file, Reason: err})
			continue
		}
		if kind != KindImage {
			rejections = append(rejections, Rejection{
				File:   file,
				Reason: pkgerrors.New(pkgerrors.CodeValidation, "expected an image file"),
			})
			continue
		}
		slot := &Slot{
			ID:     uuid.New(),
			Kind:   KindImage,
			Origin: OriginPending,
			Local:  file,
		}
		c.slots = append(c.slots, nil)
		insertAt := c.imageInsertIndex()
		copy(c.slots[insertAt+1:], c.slots[insertAt:])
		c.slots[insertAt] = slot
	}
	return rejections
}

// imageInsertIndex keeps a trailing video last: new images go before it.
func (c *Collection) imageInsertIndex() int {
	last := len(c.slots) - 2
	if last >= 0 && c.slots[last] != nil && c.slots[last].Kind == KindVideo {
		return last
	}
	return len(c.slots) - 1
}

// AddVideo validates and appends a pending video slot. A second video is
// rejected outright; replacing requires an explicit remove first.
func (c *Collection) AddVideo(ctx context.Context, file *LocalFile) error {
	kind, err := c.validator.Validate(ctx, file, c.Counts())
	if err != nil {
		return err
	}
	if kind != KindVideo {
		return pkgerrors.New(pkgerrors.CodeValidation, "expected a video file")
	}
	c.slots = append(c.slots, &Slot{
		ID:     uuid.New(),
		Kind:   KindVideo,
		Origin: OriginPending,
		Local:  file,
	})
	return nil
}

// RemoveAt drops the slot at index, releasing its local file when pending.
func (c *Collection) RemoveAt(index int) error {
	if index < 0 || index >= len(c.slots) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("slot index %d out of range", index))
	}
	slot := c.slots[index]
	if slot.Origin == OriginPending {
		_ = slot.Local.Release()
	}
	c.slots = append(c.slots[:index], c.slots[index+1:]...)
	return nil
}

// Replace swaps the slot at index for a new pending candidate of the same
// kind. Validation runs with the old slot excluded from the tallies, so
// swapping the only video for another video passes. On rejection the
// collection is unchanged and the candidate stays with the caller.
func (c *Collection) Replace(ctx context.Context, index int, file *LocalFile) error {
	if index < 0 || index >= len(c.slots) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("slot index %d out of range", index))
	}
	old := c.slots[index]
	counts := c.Counts()
	switch old.Kind {
	case KindImage:
		counts.Images--
	case KindVideo:
		counts.Videos--
	}
	kind, err := c.validator.Validate(ctx, file, counts)
	if err != nil {
		return err
	}
	if kind != old.Kind {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("replacement must be a %s", old.Kind))
	}
	if old.Origin == OriginPending {
		_ = old.Local.Release()
	}
	c.slots[index] = &Slot{
		ID:     uuid.New(),
		Kind:   kind,
		Origin: OriginPending,
		Local:  file,
	}
	return nil
}

// Move reorders a slot. Out-of-range or equal indices are a no-op.
func (c *Collection) Move(from, to int) {
	if from == to || from < 0 || to < 0 || from >= len(c.slots) || to >= len(c.slots) {
		return
	}
	slot := c.slots[from]
	c.slots = append(c.slots[:from], c.slots[from+1:]...)
	c.slots = append(c.slots[:to], append([]*Slot{slot}, c.slots[to:]...)...)
}

// Snapshot returns the durable storage paths currently referenced. Legacy
// slots without a recorded path are excluded, so their blobs are never
// candidates for cleanup.
func (c *Collection) Snapshot() map[string]struct{} {
	paths := make(map[string]struct{})
	for _, slot := range c.slots {
		if slot.Origin == OriginExisting && slot.StoragePath != "" {
			paths[slot.StoragePath] = struct{}{}
		}
	}
	return paths
}

// PendingCount reports how many slots still need uploading.
func (c *Collection) PendingCount() int {
	n := 0
	for _, slot := range c.slots {
		if slot.Origin == OriginPending {
			n++
		}
	}
	return n
}

// ReleasePending frees the local files of all pending slots. Used when an
// edit session is abandoned.
func (c *Collection) ReleasePending() {
	for _, slot := range c.slots {
		if slot.Origin == OriginPending {
			_ = slot.Local.Release()
		}
	}
}
