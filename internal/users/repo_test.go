package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lumasites/lumasites-backend/pkg/auth"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
)

func setupUsersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS admin_users (
  id TEXT PRIMARY KEY,
  site_key TEXT NOT NULL,
  email TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)
	return conn
}

func TestFindByEmailIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	repo := NewRepository(setupUsersTestDB(t))
	ctx := context.Background()

	created := &AdminUser{
		SiteKey:      "acme",
		Email:        "Owner@Acme.Test",
		PasswordHash: "hash",
		Role:         auth.RoleOwner,
	}
	require.NoError(t, repo.Create(ctx, created))
	assert.NotEqual(t, uuid.Nil, created.ID)

	found, err := repo.FindByEmail(ctx, "acme", "  owner@acme.test ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, auth.RoleOwner, found.Role)
}

func TestFindByEmailScopedToSite(t *testing.T) {
	t.Parallel()
	repo := NewRepository(setupUsersTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &AdminUser{
		SiteKey:      "acme",
		Email:        "owner@acme.test",
		PasswordHash: "hash",
		Role:         auth.RoleOwner,
	}))

	_, err := repo.FindByEmail(ctx, "other-site", "owner@acme.test")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateLastLogin(t *testing.T) {
	t.Parallel()
	repo := NewRepository(setupUsersTestDB(t))
	ctx := context.Background()

	user := &AdminUser{
		SiteKey:      "acme",
		Email:        "editor@acme.test",
		PasswordHash: "hash",
		Role:         auth.RoleEditor,
	}
	require.NoError(t, repo.Create(ctx, user))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateLastLogin(ctx, user.ID, at))

	found, err := repo.FindByEmail(ctx, "acme", "editor@acme.test")
	require.NoError(t, err)
	require.NotNil(t, found.LastLoginAt)
	assert.WithinDuration(t, at, *found.LastLoginAt, time.Second)
}
