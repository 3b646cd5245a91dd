package mediasync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
)

const minJPEGQuality = 40

// ImageCompressor re-encodes candidate images before upload: bounded to a
// maximum dimension and byte size, always normalized to JPEG. Videos are
// never touched.
type ImageCompressor struct {
	MaxDimension int
	MaxBytes     int64
	Quality      int
}

// NewImageCompressor builds a compressor with sane floors applied.
func NewImageCompressor(maxDimension int, maxBytes int64, quality int) *ImageCompressor {
	if maxDimension <= 0 {
		maxDimension = 1920
	}
	if maxBytes <= 0 {
		maxBytes = 1536 * 1024
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &ImageCompressor{
		MaxDimension: maxDimension,
		MaxBytes:     maxBytes,
		Quality:      quality,
	}
}

// Compress writes a bounded JPEG rendition of the source image to a sibling
// temp file and returns it as a new LocalFile with MIME image/jpeg. The
// source file is left untouched; the caller decides when to release either.
func (c *ImageCompressor) Compress(src *LocalFile) (*LocalFile, error) {
	if src == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no file to compress")
	}

	img, err := imaging.Open(src.Path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode image")
	}

	bounds := img.Bounds()
	if bounds.Dx() > c.MaxDimension || bounds.Dy() > c.MaxDimension {
		img = imaging.Fit(img, c.MaxDimension, c.MaxDimension, imaging.Lanczos)
	}

	out, err := os.CreateTemp(filepath.Dir(src.Path), "compressed-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	outPath := out.Name()
	_ = out.Close()

	// Step quality down until the rendition fits the byte ceiling.
	quality := c.Quality
	var size int64
	for {
		if err := imaging.Save(img, outPath, imaging.JPEGQuality(quality)); err != nil {
			_ = os.Remove(outPath)
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		info, err := os.Stat(outPath)
		if err != nil {
			_ = os.Remove(outPath)
			return nil, fmt.Errorf("stat compressed file: %w", err)
		}
		size = info.Size()
		if size <= c.MaxBytes || quality <= minJPEGQuality {
			break
		}
		quality -= 10
		if quality < minJPEGQuality {
			quality = minJPEGQuality
		}
	}

	return &LocalFile{
		Path: outPath,
		MIME: "image/jpeg",
		Size: size,
	}, nil
}
