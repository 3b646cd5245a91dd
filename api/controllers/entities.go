package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumasites/lumasites-backend/api/responses"
	"github.com/lumasites/lumasites-backend/internal/catalog"
	"github.com/lumasites/lumasites-backend/pkg/docstore"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
	"github.com/lumasites/lumasites-backend/pkg/logger"
)

func routeScope(r *http.Request) (siteKey string, kind catalog.Kind, err error) {
	siteKey = chi.URLParam(r, "siteKey")
	kind, err = catalog.ParseKind(chi.URLParam(r, "kind"))
	return siteKey, kind, err
}

func decodeDocument(r *http.Request) (docstore.Document, error) {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	var doc docstore.Document
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body")
	}
	return doc, nil
}

// EntityCreate inserts a new entity document for the kind in the URL.
func EntityCreate(svc *catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteKey, kind, err := routeScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		doc, err := decodeDocument(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := svc.Create(r.Context(), siteKey, kind, doc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"id": id})
	}
}

// EntityGet returns one entity document.
func EntityGet(svc *catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteKey, kind, err := routeScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		doc, err := svc.Get(r.Context(), siteKey, kind, chi.URLParam(r, "entityID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, doc)
	}
}

// EntityList returns every entity of the kind for the site.
func EntityList(svc *catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteKey, kind, err := routeScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.List(r.Context(), siteKey, kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}

// EntityUpdate applies a text-only patch in one document write. Media edits
// go through the save pipeline instead.
func EntityUpdate(svc *catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteKey, kind, err := routeScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		patch, err := decodeDocument(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		for _, reserved := range []string{"mediaItems", "mediaURL", "mediaType", "mediaPaths"} {
			if _, present := patch[reserved]; present {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "media fields are managed by the media save endpoint"))
				return
			}
		}

		if err := svc.UpdateFields(r.Context(), siteKey, kind, chi.URLParam(r, "entityID"), patch); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}

// EntityDelete removes the document and hands its blob paths to the cleanup
// worker.
func EntityDelete(svc *catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteKey, kind, err := routeScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), siteKey, kind, chi.URLParam(r, "entityID")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
