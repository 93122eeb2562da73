package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/forgelab-io/forge-engine/pkg/apperrors"
	"github.com/forgelab-io/forge-engine/pkg/models"
	"github.com/forgelab-io/forge-engine/pkg/repositories"
)

func TestUserRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a hash, not the password", func(t *testing.T) {
		svc := NewUserService(newMockUserRepository(), zap.NewNop())

		user, err := svc.Register(ctx, "alice", "correct-horse", "Alice")
		require.NoError(t, err)
		assert.NotZero(t, user.ID)
		assert.Equal(t, models.RoleUser, user.Role)
		assert.NotEqual(t, "correct-horse", user.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct-horse")))
	})

	t.Run("empty account", func(t *testing.T) {
		svc := NewUserService(newMockUserRepository(), zap.NewNop())
		_, err := svc.Register(ctx, "", "correct-horse", "Alice")
		assert.ErrorIs(t, err, apperrors.ErrInvalidIdentifier)
	})

	t.Run("short password", func(t *testing.T) {
		svc := NewUserService(newMockUserRepository(), zap.NewNop())
		_, err := svc.Register(ctx, "alice", "short", "Alice")
		assert.ErrorIs(t, err, apperrors.ErrInvalidIdentifier)
	})

	t.Run("duplicate account", func(t *testing.T) {
		repo := newMockUserRepository()
		svc := NewUserService(repo, zap.NewNop())

		_, err := svc.Register(ctx, "alice", "correct-horse", "Alice")
		require.NoError(t, err)

		_, err = svc.Register(ctx, "alice", "other-password", "Imposter")
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})
}

func TestUserAuthenticate(t *testing.T) {
	ctx := context.Background()
	repo := newMockUserRepository()
	svc := NewUserService(repo, zap.NewNop())

	registered, err := svc.Register(ctx, "alice", "correct-horse", "Alice")
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "alice", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "alice", "wrong-password")
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("unknown account gets the same error", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "nobody", "correct-horse")
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})
}

// newUserFixture registers alice and bob as plain users plus one admin and
// returns them alongside the service.
func newUserFixture(t *testing.T) (UserService, *models.User, *models.User, *models.User) {
	t.Helper()
	ctx := context.Background()
	repo := newMockUserRepository()
	svc := NewUserService(repo, zap.NewNop())

	alice, err := svc.Register(ctx, "alice", "correct-horse", "Alice")
	require.NoError(t, err)
	bob, err := svc.Register(ctx, "bob", "correct-horse", "Bob")
	require.NoError(t, err)

	admin := &models.User{Account: "root", PasswordHash: "x", Name: "Root", Role: models.RoleAdmin}
	require.NoError(t, repo.Create(ctx, admin))
	return svc, alice, bob, admin
}

func TestUserList(t *testing.T) {
	ctx := context.Background()

	t.Run("admin sees everyone", func(t *testing.T) {
		svc, _, _, admin := newUserFixture(t)

		users, total, err := svc.List(ctx, admin, repositories.UserFilter{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, users, 3)
	})

	t.Run("account filter narrows the page", func(t *testing.T) {
		svc, alice, _, admin := newUserFixture(t)

		users, total, err := svc.List(ctx, admin, repositories.UserFilter{Account: "ali"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, users, 1)
		assert.Equal(t, alice.ID, users[0].ID)
	})

	t.Run("regular user is forbidden", func(t *testing.T) {
		svc, alice, _, _ := newUserFixture(t)

		_, _, err := svc.List(ctx, alice, repositories.UserFilter{})
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})
}

func TestUserUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("user edits own profile", func(t *testing.T) {
		svc, alice, _, _ := newUserFixture(t)

		name := "Alice Cooper"
		profile := "builds todo lists"
		updated, err := svc.Update(ctx, alice, alice.ID, UpdateUserInput{Name: &name, Profile: &profile})
		require.NoError(t, err)
		assert.Equal(t, "Alice Cooper", updated.Name)
		require.NotNil(t, updated.Profile)
		assert.Equal(t, "builds todo lists", *updated.Profile)

		stored, err := svc.Get(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alice Cooper", stored.Name)
	})

	t.Run("user may not edit someone else", func(t *testing.T) {
		svc, alice, bob, _ := newUserFixture(t)

		name := "Hijacked"
		_, err := svc.Update(ctx, alice, bob.ID, UpdateUserInput{Name: &name})
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("admin promotes a user", func(t *testing.T) {
		svc, alice, _, admin := newUserFixture(t)

		role := models.RoleAdmin
		updated, err := svc.Update(ctx, admin, alice.ID, UpdateUserInput{Role: &role})
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, updated.Role)
	})

	t.Run("user may not change own role", func(t *testing.T) {
		svc, alice, _, _ := newUserFixture(t)

		role := models.RoleAdmin
		_, err := svc.Update(ctx, alice, alice.ID, UpdateUserInput{Role: &role})
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		svc, alice, _, admin := newUserFixture(t)

		role := "superuser"
		_, err := svc.Update(ctx, admin, alice.ID, UpdateUserInput{Role: &role})
		assert.ErrorIs(t, err, apperrors.ErrInvalidIdentifier)
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, _, _, admin := newUserFixture(t)

		name := "Nobody"
		_, err := svc.Update(ctx, admin, 404, UpdateUserInput{Name: &name})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestUserDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("admin soft-deletes a user", func(t *testing.T) {
		svc, alice, _, admin := newUserFixture(t)

		require.NoError(t, svc.Delete(ctx, admin, alice.ID))

		_, err := svc.Get(ctx, alice.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		_, err = svc.Authenticate(ctx, "alice", "correct-horse")
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("regular user is forbidden", func(t *testing.T) {
		svc, alice, bob, _ := newUserFixture(t)

		err := svc.Delete(ctx, alice, bob.ID)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, _, _, admin := newUserFixture(t)

		err := svc.Delete(ctx, admin, 404)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}
