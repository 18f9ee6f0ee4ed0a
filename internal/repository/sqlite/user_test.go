package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/bookworm/internal/apperror"
	"github.com/sakif/bookworm/internal/model"
	"github.com/sakif/bookworm/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{Username: "reader", Email: "Reader@Example.com", PasswordHash: "h"}
	require.NoError(t, db.Users().Create(context.Background(), user))

	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
	assert.Equal(t, "reader@example.com", user.Email, "email stored lower-cased")
}

func TestUserCreate_Duplicates(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice")

	err := db.Users().Create(context.Background(), &model.User{Username: "alice", Email: "other@example.com"})
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, "Username already exists", err.Error())

	err = db.Users().Create(context.Background(), &model.User{Username: "alice2", Email: "ALICE@example.com"})
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, "Email already exists", err.Error())
}

func TestUserGetByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "getter")

	found, err := db.Users().GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "getter", found.Username)
	assert.Equal(t, int64(0), found.GitHubID)

	_, err = db.Users().GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUserGetByEmail_CaseInsensitive(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "mixed")

	found, err := db.Users().GetByEmail(context.Background(), "  MIXED@example.com ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestFindConflict(t *testing.T) {
	db := newTestDB(t)
	me := createTestUser(t, db, "me")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	ctx := context.Background()

	t.Run("no arguments", func(t *testing.T) {
		u, err := db.Users().FindConflict(ctx, me.ID, "", "")
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("own values are not conflicts", func(t *testing.T) {
		u, err := db.Users().FindConflict(ctx, me.ID, "me", "me@example.com")
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("username match", func(t *testing.T) {
		u, err := db.Users().FindConflict(ctx, me.ID, "bob", "")
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, bob.ID, u.ID)
	})

	t.Run("username row preferred when both collide", func(t *testing.T) {
		u, err := db.Users().FindConflict(ctx, me.ID, "bob", "carol@example.com")
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, bob.ID, u.ID)
	})

	t.Run("email match", func(t *testing.T) {
		u, err := db.Users().FindConflict(ctx, me.ID, "nobody", "CAROL@example.com")
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, carol.ID, u.ID)
	})
}

func TestUpdateProfile(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "before")
	ctx := context.Background()

	updated, err := db.Users().UpdateProfile(ctx, user.ID, repository.ProfileFields{
		Username:     ptr("after"),
		ProfileImage: ptr("https://media.example.com/new"),
	})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Username)
	assert.Equal(t, "before@example.com", updated.Email, "untouched column kept")
	assert.Equal(t, "https://media.example.com/new", updated.ProfileImage)
	assert.Equal(t, "hash", updated.PasswordHash)
}

func TestUpdateProfile_Empty(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "same")

	got, err := db.Users().UpdateProfile(context.Background(), user.ID, repository.ProfileFields{})
	require.NoError(t, err)
	assert.Equal(t, "same", got.Username)
}

func TestUpdateProfile_UniqueViolation(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "first")
	createTestUser(t, db, "taken")

	_, err := db.Users().UpdateProfile(context.Background(), user.ID, repository.ProfileFields{Username: ptr("taken")})
	require.ErrorIs(t, err, apperror.ErrConflict)

	stored, err := db.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", stored.Username)
}

func TestUpdateProfile_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Users().UpdateProfile(context.Background(), "missing", repository.ProfileFields{Username: ptr("x")})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdatePassword(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "pw")

	require.NoError(t, db.Users().UpdatePassword(context.Background(), user.ID, "new-hash"))

	stored, err := db.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", stored.PasswordHash)

	assert.ErrorIs(t, db.Users().UpdatePassword(context.Background(), "missing", "x"), apperror.ErrNotFound)
}

func TestLinkGitHub(t *testing.T) {
	db := newTestDB(t)
	first := createTestUser(t, db, "octo")
	second := createTestUser(t, db, "cat")
	ctx := context.Background()

	require.NoError(t, db.Users().LinkGitHub(ctx, first.ID, 4242))

	found, err := db.Users().GetByGitHubID(ctx, 4242)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	err = db.Users().LinkGitHub(ctx, second.ID, 4242)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = db.Users().GetByGitHubID(ctx, 1)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
