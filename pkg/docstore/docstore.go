// Package docstore exposes the tenant entity records as an opaque,
// transactional key-document store. Every mutation replaces whole document
// fields in a single write; partial array patches are never issued, so a
// concurrent reader observes either the old document or the new one.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumasites/lumasites-backend/pkg/db"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
	"gorm.io/gorm"
)

// Ref addresses one entity document.
type Ref struct {
	SiteKey string
	Kind    string
	ID      string
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s/%s", r.SiteKey, r.Kind, r.ID)
}

func (r Ref) validate() error {
	if r.SiteKey == "" || r.Kind == "" || r.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "document ref requires site key, kind and id")
	}
	return nil
}

// Document is the JSON-like body of an entity record.
type Document map[string]any

// Clone returns a shallow copy so callers can mutate without aliasing.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Entry pairs a ref with its document, as returned by List.
type Entry struct {
	Ref Ref
	Doc Document
}

// Store is the surface the rest of the system depends on.
type Store interface {
	Get(ctx context.Context, ref Ref) (Document, error)
	Create(ctx context.Context, ref Ref, doc Document) error
	// Apply merges patch into the stored document in one transactional write.
	// A nil patch value deletes the field.
	Apply(ctx context.Context, ref Ref, patch Document) error
	// Delete removes the document and returns its last contents.
	Delete(ctx context.Context, ref Ref) (Document, error)
	List(ctx context.Context, siteKey, kind string) ([]Entry, error)
}

// GormStore persists documents in the entity_documents table.
type GormStore struct {
	client *db.Client
}

// NewGormStore builds the store on top of the shared DB client.
func NewGormStore(client *db.Client) (*GormStore, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &GormStore{client: client}, nil
}

type record struct {
	SiteKey   string    `gorm:"column:site_key;primaryKey"`
	Kind      string    `gorm:"column:kind;primaryKey"`
	EntityID  string    `gorm:"column:entity_id;primaryKey"`
	Doc       JSONDoc   `gorm:"column:doc;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (record) TableName() string {
	return "entity_documents"
}

func (s *GormStore) Get(ctx context.Context, ref Ref) (Document, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	var row record
	err := s.client.DB().WithContext(ctx).
		Where("site_key = ? AND kind = ? AND entity_id = ?", ref.SiteKey, ref.Kind, ref.ID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document")
	}
	return Document(row.Doc).Clone(), nil
}

func (s *GormStore) Create(ctx context.Context, ref Ref, doc Document) error {
	if err := ref.validate(); err != nil {
		return err
	}
	if doc == nil {
		doc = Document{}
	}
	row := record{
		SiteKey:  ref.SiteKey,
		Kind:     ref.Kind,
		EntityID: ref.ID,
		Doc:      JSONDoc(doc),
	}
	if err := s.client.DB().WithContext(ctx).Create(&row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert document")
	}
	return nil
}

func (s *GormStore) Apply(ctx context.Context, ref Ref, patch Document) error {
	if err := ref.validate(); err != nil {
		return err
	}
	if len(patch) == 0 {
		return nil
	}
	return s.client.WithTx(ctx, func(tx *gorm.DB) error {
		var row record
		err := tx.WithContext(ctx).
			Where("site_key = ? AND kind = ? AND entity_id = ?", ref.SiteKey, ref.Kind, ref.ID).
			First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document for update")
		}

		merged := Document(row.Doc).Clone()
		for key, value := range patch {
			if value == nil {
				delete(merged, key)
				continue
			}
			merged[key] = value
		}

		err = tx.WithContext(ctx).
			Model(&record{}).
			Where("site_key = ? AND kind = ? AND entity_id = ?", ref.SiteKey, ref.Kind, ref.ID).
			Update("doc", JSONDoc(merged)).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write document")
		}
		return nil
	})
}

func (s *GormStore) Delete(ctx context.Context, ref Ref) (Document, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	var deleted Document
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		var row record
		err := tx.WithContext(ctx).
			Where("site_key = ? AND kind = ? AND entity_id = ?", ref.SiteKey, ref.Kind, ref.ID).
			First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document for delete")
		}
		deleted = Document(row.Doc).Clone()

		err = tx.WithContext(ctx).
			Where("site_key = ? AND kind = ? AND entity_id = ?", ref.SiteKey, ref.Kind, ref.ID).
			Delete(&record{}).Error
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete document")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *GormStore) List(ctx context.Context, siteKey, kind string) ([]Entry, error) {
	if siteKey == "" || kind == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "site key and kind required")
	}
	var rows []record
	err := s.client.DB().WithContext(ctx).
		Where("site_key = ? AND kind = ?", siteKey, kind).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list documents")
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			Ref: Ref{SiteKey: row.SiteKey, Kind: row.Kind, ID: row.EntityID},
			Doc: Document(row.Doc).Clone(),
		})
	}
	return entries, nil
}
