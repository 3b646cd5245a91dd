// Package users persists the admin panel accounts. Each account belongs to
// exactly one tenant site and carries the role enforced by the API layer.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumasites/lumasites-backend/pkg/auth"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
)

// AdminUser is one admin panel account row.
type AdminUser struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	SiteKey      string     `gorm:"column:site_key;not null"`
	Email        string     `gorm:"column:email;not null"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	Role         auth.Role  `gorm:"column:role;not null"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (AdminUser) TableName() string {
	return "admin_users"
}

// Repository reads and writes admin accounts.
type Repository struct {
	conn *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{conn: conn}
}

// FindByEmail looks up an account by site and email, case-insensitive on the
// email side.
func (r *Repository) FindByEmail(ctx context.Context, siteKey, email string) (*AdminUser, error) {
	var user AdminUser
	err := r.conn.WithContext(ctx).
		Where("site_key = ? AND LOWER(email) = ?", siteKey, strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load admin user")
	}
	return &user, nil
}

// Create inserts a new admin account.
func (r *Repository) Create(ctx context.Context, user *AdminUser) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if err := r.conn.WithContext(ctx).Create(user).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert admin user")
	}
	return nil
}

// UpdateLastLogin stamps the account's most recent login.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := r.conn.WithContext(ctx).
		Model(&AdminUser{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp last login")
	}
	return nil
}
