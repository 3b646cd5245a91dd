// Package mediasync implements the bounded ordered media-collection
// synchronization engine shared by every editable entity kind. An entity owns
// an ordered carousel of up to MaxImages images and at most one video; editing
// validates candidate files, uploads only what changed, commits the final
// ordered array in a single document write, then cleans orphaned blobs
// best-effort. Ordering is strict: upload, then document write, then storage
// cleanup.
package mediasync

import (
	"fmt"
	"time"

	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
)

// ObjectPathFunc derives the deterministic storage key for a pending slot
// from the owning entity and the slot's position at upload time.
type ObjectPathFunc func(siteKey, entityID string, index int, ext string) string

// Config carries the per-kind ceilings and path layout. The engine never
// bakes these in; each owning entity supplies its own at construction.
type Config struct {
	Kind             string
	MaxImages        int
	MaxVideos        int
	MaxVideoDuration time.Duration
	ImageMIMEs       []string
	VideoMIMEs       []string
	ObjectPath       ObjectPathFunc
}

// Validate rejects configurations the engine cannot operate under.
func (c Config) Validate() error {
	if c.Kind == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "media config requires an entity kind")
	}
	if c.MaxImages < 0 || c.MaxVideos < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "media config ceilings cannot be negative")
	}
	if c.MaxImages == 0 && c.MaxVideos == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "media config must allow at least one slot")
	}
	if c.MaxVideos > 0 && c.MaxVideoDuration <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "media config requires a video duration ceiling")
	}
	if c.MaxImages > 0 && len(c.ImageMIMEs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "media config requires allowed image mime types")
	}
	if c.MaxVideos > 0 && len(c.VideoMIMEs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "media config requires allowed video mime types")
	}
	if c.ObjectPath == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "media config requires an object path function")
	}
	return nil
}

// DefaultObjectPath lays storage keys out as
// sites/{siteKey}/{kind}/{entityID}/{index}.{ext}.
func DefaultObjectPath(kind string) ObjectPathFunc {
	return func(siteKey, entityID string, index int, ext string) string {
		return fmt.Sprintf("sites/%s/%s/%s/%d.%s", siteKey, kind, entityID, index, ext)
	}
}

var mimeExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
	"video/mp4":  "mp4",
	"video/webm": "webm",
	// quicktime shows up from phone uploads
	"video/quicktime": "mov",
}

// ExtensionForMIME maps a content type to the storage extension. The original
// filename is never trusted; compressed images always re-encode to jpg.
func ExtensionForMIME(mime string) (string, error) {
	if ext, ok := mimeExtensions[mime]; ok {
		return ext, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported content type %q", mime))
}
