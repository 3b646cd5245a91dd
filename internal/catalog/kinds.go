// Package catalog owns the editable entity kinds of a tenant site and the
// operations on their documents. Every kind shares the same media pipeline;
// only the ceilings differ.
package catalog

import (
	"fmt"
	"time"

	"github.com/lumasites/lumasites-backend/internal/mediasync"
	"github.com/lumasites/lumasites-backend/pkg/config"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
)

// Kind identifies one editable entity type.
type Kind string

const (
	KindProduct     Kind = "product"
	KindMenuSection Kind = "menu_section"
	KindProject     Kind = "project"
	KindHero        Kind = "hero"
	KindStaff       Kind = "staff"
	KindStore       Kind = "store"
)

// Kinds lists every editable kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindProduct, KindMenuSection, KindProject, KindHero, KindStaff, KindStore}
}

// ParseKind validates a kind string coming off the wire.
func ParseKind(s string) (Kind, error) {
	kind := Kind(s)
	for _, known := range Kinds() {
		if kind == known {
			return kind, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown entity kind %q", s))
}

var (
	imageMIMEs = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}
	videoMIMEs = []string{"video/mp4", "video/webm", "video/quicktime"}
)

// MediaConfigFor builds the sync engine config for one kind from the
// configured ceilings.
func MediaConfigFor(kind Kind, cfg config.MediaConfig) (mediasync.Config, error) {
	base := mediasync.Config{
		Kind:       string(kind),
		MaxVideos:  1,
		ImageMIMEs: imageMIMEs,
		VideoMIMEs: videoMIMEs,
		ObjectPath: mediasync.DefaultObjectPath(string(kind)),
	}

	switch kind {
	case KindProduct:
		base.MaxImages = cfg.ProductMaxImages
		base.MaxVideoDuration = time.Duration(cfg.ProductVideoSeconds) * time.Second
	case KindMenuSection:
		base.MaxImages = cfg.SectionMaxImages
		base.MaxVideoDuration = time.Duration(cfg.SectionVideoSeconds) * time.Second
	case KindProject:
		base.MaxImages = cfg.ProjectMaxImages
		base.MaxVideoDuration = time.Duration(cfg.ProjectVideoSeconds) * time.Second
	case KindHero:
		base.MaxImages = cfg.HeroMaxImages
		base.MaxVideoDuration = time.Duration(cfg.HeroVideoSeconds) * time.Second
	case KindStaff:
		// Portraits only, no video slot.
		base.MaxImages = cfg.StaffMaxImages
		base.MaxVideos = 0
		base.VideoMIMEs = nil
	case KindStore:
		base.MaxImages = cfg.StoreMaxImages
		base.MaxVideoDuration = time.Duration(cfg.StoreVideoSeconds) * time.Second
	default:
		return mediasync.Config{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown entity kind %q", kind))
	}

	if err := base.Validate(); err != nil {
		return mediasync.Config{}, err
	}
	return base, nil
}
