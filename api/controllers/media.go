package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lumasites/lumasites-backend/api/responses"
	"github.com/lumasites/lumasites-backend/internal/catalog"
	"github.com/lumasites/lumasites-backend/internal/mediasync"
	"github.com/lumasites/lumasites-backend/pkg/docstore"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
	"github.com/lumasites/lumasites-backend/pkg/logger"
)

// Multipart bodies spill to disk past this threshold; staged media lands in
// temp files either way.
const multipartMemoryLimit = 8 << 20

// manifestEntryBody is the wire shape of one manifest slot. An entry either
// references an existing slot by index or names a file part of the same
// multipart body.
type manifestEntryBody struct {
	ExistingIndex *int   `json:"existingIndex,omitempty"`
	File          string `json:"file,omitempty"`
	Type          string `json:"type,omitempty"`
}

type saveAcceptedBody struct {
	SaveID     string          `json:"saveId"`
	Rejections []rejectionBody `json:"rejections,omitempty"`
}

type rejectionBody struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// MediaSave accepts a multipart edit of an entity's media collection: a
// "manifest" JSON part describing the desired final order, an optional
// "fields" JSON part with unrelated document edits, and one file part per
// staged upload. The upload pipeline runs in the background; the response
// carries the save ID to stream progress against.
func MediaSave(svc *catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteKey, kind, err := routeScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entityID := chi.URLParam(r, "entityID")

		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body"))
			return
		}
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()

		var wireManifest []manifestEntryBody
		if err := decodeJSONValue(r.FormValue("manifest"), &wireManifest, "manifest"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fields := docstore.Document{}
		if raw := r.FormValue("fields"); raw != "" {
			if err := decodeJSONValue(raw, &fields, "fields"); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		manifest, staged, err := stageManifest(r, wireManifest)
		if err != nil {
			releaseStaged(staged)
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		receipt, err := svc.StartSave(r.Context(), siteKey, kind, entityID, catalog.SaveRequest{
			SaveID:   r.FormValue("saveId"),
			Manifest: manifest,
			Fields:   fields,
		})
		if err != nil {
			// Accepted files belong to the save once it starts; on failure
			// nothing started, so every staged file is ours to discard.
			releaseStaged(staged)
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		body := saveAcceptedBody{SaveID: receipt.SaveID}
		for _, rejection := range receipt.Rejections {
			body.Rejections = append(body.Rejections, rejectionBody{
				File:   staged[rejection.File],
				Reason: rejection.Reason.Error(),
			})
			_ = rejection.File.Release()
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, body)
	}
}

func decodeJSONValue(raw string, dest any, label string) error {
	if raw == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s part is required", label))
	}
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid %s part", label))
	}
	return nil
}

// stageManifest copies every referenced file part to a temp file and builds
// the service-layer manifest. The returned map tracks staged files by their
// form field name so rejections can report the offending part.
func stageManifest(r *http.Request, wire []manifestEntryBody) ([]catalog.ManifestEntry, map[*mediasync.LocalFile]string, error) {
	manifest := make([]catalog.ManifestEntry, 0, len(wire))
	staged := make(map[*mediasync.LocalFile]string)

	for i, entry := range wire {
		if entry.ExistingIndex != nil {
			index := *entry.ExistingIndex
			manifest = append(manifest, catalog.ManifestEntry{Existing: &index})
			continue
		}
		if entry.File == "" {
			return nil, staged, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("manifest entry %d names neither an existing slot nor a file part", i))
		}

		kind := mediasync.SlotKind(entry.Type)
		if kind != mediasync.KindImage && kind != mediasync.KindVideo {
			return nil, staged, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("manifest entry %d has unknown media type %q", i, entry.Type))
		}

		headers := r.MultipartForm.File[entry.File]
		if len(headers) == 0 {
			return nil, staged, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("manifest entry %d references missing file part %q", i, entry.File))
		}

		file, err := stageFilePart(headers[0])
		if err != nil {
			return nil, staged, err
		}
		staged[file] = entry.File
		manifest = append(manifest, catalog.ManifestEntry{File: file, Kind: kind})
	}
	return manifest, staged, nil
}

func stageFilePart(header *multipart.FileHeader) (*mediasync.LocalFile, error) {
	src, err := header.Open()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "opening uploaded file")
	}
	defer func() { _ = src.Close() }()

	dst, err := os.CreateTemp("", "lumasites-upload-*")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "staging uploaded file")
	}
	size, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst.Name())
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "staging uploaded file")
	}

	return &mediasync.LocalFile{
		Path: dst.Name(),
		MIME: header.Header.Get("Content-Type"),
		Size: size,
	}, nil
}

func releaseStaged(staged map[*mediasync.LocalFile]string) {
	for file := range staged {
		_ = file.Release()
	}
}

// MediaSaveCancel aborts a running save by ID.
func MediaSaveCancel(svc *catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CancelSave(chi.URLParam(r, "saveID")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "canceling"})
	}
}
