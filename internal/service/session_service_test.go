package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-auth-backend/internal/model"
	"go-auth-backend/pkg/apierror"
)

type sessionTestEnv struct {
	svc       *SessionService
	creds     *fakeCredentialStore
	sessions  *fakeSessionStore
	artifacts *fakeArtifactStore
	tokens    *TokenAuthority
}

func newSessionTestEnv(t *testing.T, rotateRefresh bool) *sessionTestEnv {
	t.Helper()

	creds := newFakeCredentialStore()
	sessions := newFakeSessionStore()
	artifacts := newFakeArtifactStore()

	tokens, err := NewTokenAuthority("test-secret", 15*time.Minute)
	require.NoError(t, err)

	svc, err := NewSessionService(creds, sessions, artifacts, NewPasswordHasher(4), tokens, 168*time.Hour, rotateRefresh)
	require.NoError(t, err)

	return &sessionTestEnv{svc: svc, creds: creds, sessions: sessions, artifacts: artifacts, tokens: tokens}
}

func (env *sessionTestEnv) registerAndLogin(t *testing.T, email string, username string, password string) model.LoginResult {
	t.Helper()

	_, err := env.svc.Register(context.Background(), model.RegisterRequest{
		Email:    email,
		Username: username,
		Password: password,
	})
	require.NoError(t, err)

	result, err := env.svc.Login(context.Background(), email, password)
	require.NoError(t, err)

	return result
}

func requireAPIError(t *testing.T, err error, code string, status int) *apierror.APIError {
	t.Helper()

	require.Error(t, err)
	var apiErr *apierror.APIError
	require.True(t, errors.As(err, &apiErr), "expected an API error, got %v", err)
	require.Equal(t, code, apiErr.Code)
	require.Equal(t, status, apiErr.HTTPStatus)

	return apiErr
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)

	user, err := env.svc.Register(context.Background(), model.RegisterRequest{
		Email:     "a@x.com",
		Username:  "alice",
		Password:  "p1",
		FirstName: "Alice",
		Bio:       "hi there",
	})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "a@x.com", user.Email)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, model.RoleUser, user.Role)

	result, err := env.svc.Login(context.Background(), "a@x.com", "p1")
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)
	require.Equal(t, "Bearer", result.TokenType)
	require.Equal(t, user.ID, result.User.ID)
	require.Equal(t, "a@x.com", result.User.Email)
	require.Equal(t, "alice", result.User.Username)
}

func TestRegisterRequiresCredentialFields(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)

	for _, req := range []model.RegisterRequest{
		{Username: "alice", Password: "p1"},
		{Email: "a@x.com", Password: "p1"},
		{Email: "a@x.com", Username: "alice"},
	} {
		_, err := env.svc.Register(context.Background(), req)
		requireAPIError(t, err, "BAD_REQUEST", http.StatusBadRequest)
	}
}

func TestRegisterDuplicateEmailOrUsername(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)

	_, err := env.svc.Register(context.Background(), model.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "p1",
	})
	require.NoError(t, err)

	// Same email, different username.
	_, err = env.svc.Register(context.Background(), model.RegisterRequest{
		Email: "a@x.com", Username: "alice2", Password: "p1",
	})
	requireAPIError(t, err, "CONFLICT", http.StatusConflict)

	// Same username, different email.
	_, err = env.svc.Register(context.Background(), model.RegisterRequest{
		Email: "a2@x.com", Username: "alice", Password: "p1",
	})
	requireAPIError(t, err, "CONFLICT", http.StatusConflict)
}

func TestRegisterConflictDeletesStagedAvatar(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)

	_, err := env.svc.Register(context.Background(), model.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "p1",
	})
	require.NoError(t, err)

	_, err = env.svc.Register(context.Background(), model.RegisterRequest{
		Email: "a@x.com", Username: "someone", Password: "p1", Avatar: "staged/avatar.png",
	})
	requireAPIError(t, err, "CONFLICT", http.StatusConflict)
	require.Equal(t, []string{"staged/avatar.png"}, env.artifacts.removedRefs())
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)

	_, err := env.svc.Register(context.Background(), model.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "p1",
	})
	require.NoError(t, err)

	_, wrongPassword := env.svc.Login(context.Background(), "a@x.com", "nope")
	wrongPasswordErr := requireAPIError(t, wrongPassword, "UNAUTHORIZED", http.StatusUnauthorized)

	_, unknownEmail := env.svc.Login(context.Background(), "ghost@x.com", "p1")
	unknownEmailErr := requireAPIError(t, unknownEmail, "UNAUTHORIZED", http.StatusUnauthorized)

	// Identical message text so callers cannot enumerate accounts.
	require.Equal(t, wrongPasswordErr.Message, unknownEmailErr.Message)
}

func TestSecondLoginIsRejectedWhileSessionActive(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)
	result := env.registerAndLogin(t, "a@x.com", "alice", "p1")

	_, err := env.svc.Login(context.Background(), "a@x.com", "p1")
	requireAPIError(t, err, "CONFLICT", http.StatusConflict)

	// After logout the user can log in again.
	_, err = env.svc.Logout(context.Background(), result.AccessToken)
	require.NoError(t, err)

	_, err = env.svc.Login(context.Background(), "a@x.com", "p1")
	require.NoError(t, err)
}

func TestLoginClearsExpiredSession(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)
	result := env.registerAndLogin(t, "a@x.com", "alice", "p1")

	env.sessions.expire(result.RefreshToken)

	second, err := env.svc.Login(context.Background(), "a@x.com", "p1")
	require.NoError(t, err)
	require.NotEqual(t, result.AccessToken, second.AccessToken)
	require.Equal(t, 1, env.sessions.count())
}

func TestRefreshKeepsRefreshTokenByDefault(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)
	result := env.registerAndLogin(t, "a@x.com", "alice", "p1")

	refreshed, err := env.svc.Refresh(context.Background(), result.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)
	require.NotEqual(t, result.AccessToken, refreshed.AccessToken)
	require.Empty(t, refreshed.RefreshToken, "static policy must not hand out a new refresh token")

	// The session row now carries the new access token.
	session, err := env.sessions.FindByRefreshToken(context.Background(), result.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, refreshed.AccessToken, session.AccessToken)

	// The original refresh token keeps working.
	again, err := env.svc.Refresh(context.Background(), result.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, refreshed.AccessToken, again.AccessToken)
}

func TestRefreshRotationReplacesRefreshToken(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, true)
	result := env.registerAndLogin(t, "a@x.com", "alice", "p1")

	refreshed, err := env.svc.Refresh(context.Background(), result.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.RefreshToken)
	require.NotEqual(t, result.RefreshToken, refreshed.RefreshToken)

	// The old refresh token is dead after rotation.
	_, err = env.svc.Refresh(context.Background(), result.RefreshToken)
	requireAPIError(t, err, "UNAUTHORIZED", http.StatusUnauthorized)

	// The rotated one works.
	_, err = env.svc.Refresh(context.Background(), refreshed.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejections(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)
	result := env.registerAndLogin(t, "a@x.com", "alice", "p1")

	t.Run("empty token", func(t *testing.T) {
		_, err := env.svc.Refresh(context.Background(), "  ")
		requireAPIError(t, err, "BAD_REQUEST", http.StatusBadRequest)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := env.svc.Refresh(context.Background(), "no-such-token")
		requireAPIError(t, err, "UNAUTHORIZED", http.StatusUnauthorized)
	})

	t.Run("expired session", func(t *testing.T) {
		env.sessions.expire(result.RefreshToken)

		_, err := env.svc.Refresh(context.Background(), result.RefreshToken)
		requireAPIError(t, err, "UNAUTHORIZED", http.StatusUnauthorized)
	})
}

func TestRefreshFailsWhenOwnerIsGone(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)
	result := env.registerAndLogin(t, "a@x.com", "alice", "p1")

	require.NoError(t, env.creds.Delete(context.Background(), result.User.ID))

	_, err := env.svc.Refresh(context.Background(), result.RefreshToken)
	requireAPIError(t, err, "UNAUTHORIZED", http.StatusUnauthorized)
}

func TestLogout(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)
	result := env.registerAndLogin(t, "a@x.com", "alice", "p1")

	t.Run("empty token", func(t *testing.T) {
		_, err := env.svc.Logout(context.Background(), "")
		requireAPIError(t, err, "BAD_REQUEST", http.StatusBadRequest)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := env.svc.Logout(context.Background(), "no-such-token")
		requireAPIError(t, err, "BAD_REQUEST", http.StatusBadRequest)
	})

	t.Run("matching token deletes the session", func(t *testing.T) {
		msg, err := env.svc.Logout(context.Background(), result.AccessToken)
		require.NoError(t, err)
		require.NotEmpty(t, msg.Message)
		require.Equal(t, 0, env.sessions.count())

		// Logging out twice is already-logged-out.
		_, err = env.svc.Logout(context.Background(), result.AccessToken)
		requireAPIError(t, err, "BAD_REQUEST", http.StatusBadRequest)

		_, err = env.svc.Authenticate(context.Background(), result.AccessToken)
		requireAPIError(t, err, "UNAUTHORIZED", http.StatusUnauthorized)
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)
	result := env.registerAndLogin(t, "a@x.com", "alice", "p1")

	t.Run("empty token", func(t *testing.T) {
		_, err := env.svc.Authenticate(context.Background(), "")
		requireAPIError(t, err, "BAD_REQUEST", http.StatusBadRequest)
	})

	t.Run("resolves the owning user", func(t *testing.T) {
		user, err := env.svc.Authenticate(context.Background(), result.AccessToken)
		require.NoError(t, err)
		require.Equal(t, result.User.ID, user.ID)
	})

	t.Run("orphaned session reports the missing user", func(t *testing.T) {
		require.NoError(t, env.creds.Delete(context.Background(), result.User.ID))

		_, err := env.svc.Authenticate(context.Background(), result.AccessToken)
		requireAPIError(t, err, "NOT_FOUND", http.StatusNotFound)
	})
}

func TestAuthorizeDistinguishesCallerStates(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)
	alice := env.registerAndLogin(t, "a@x.com", "alice", "p1")

	require.NoError(t, env.svc.Authorize(context.Background(), alice.AccessToken, alice.User.ID))

	noSession := env.svc.Authorize(context.Background(), "bogus-token", alice.User.ID)
	noSessionErr := requireAPIError(t, noSession, "UNAUTHORIZED", http.StatusUnauthorized)

	notOwner := env.svc.Authorize(context.Background(), alice.AccessToken, "some-other-user")
	notOwnerErr := requireAPIError(t, notOwner, "UNAUTHORIZED", http.StatusUnauthorized)

	// Same status, different wording: "not authenticated" vs "not yours".
	require.NotEqual(t, noSessionErr.Message, notOwnerErr.Message)
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)
	alice := env.registerAndLogin(t, "a@x.com", "alice", "p1")
	bob := env.registerAndLogin(t, "b@x.com", "bob", "p2")

	t.Run("owner can update fields", func(t *testing.T) {
		bio := "updated bio"
		firstName := "Alice"
		updated, err := env.svc.UpdateProfile(context.Background(), alice.User.ID, model.UserUpdate{
			Bio:       &bio,
			FirstName: &firstName,
		}, alice.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "updated bio", updated.Bio)
		require.Equal(t, "Alice", updated.FirstName)
		require.Equal(t, "a@x.com", updated.Email)
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		bio := "hijacked"
		_, err := env.svc.UpdateProfile(context.Background(), alice.User.ID, model.UserUpdate{Bio: &bio}, bob.AccessToken)
		requireAPIError(t, err, "UNAUTHORIZED", http.StatusUnauthorized)
	})

	t.Run("taking another user's username conflicts", func(t *testing.T) {
		username := "bob"
		_, err := env.svc.UpdateProfile(context.Background(), alice.User.ID, model.UserUpdate{Username: &username}, alice.AccessToken)
		requireAPIError(t, err, "CONFLICT", http.StatusConflict)
	})
}

func TestDeleteAccount(t *testing.T) {
	t.Parallel()

	t.Run("deletes user, sessions and avatar", func(t *testing.T) {
		env := newSessionTestEnv(t, false)

		_, err := env.svc.Register(context.Background(), model.RegisterRequest{
			Email: "a@x.com", Username: "alice", Password: "p1", Avatar: "avatars/alice.png",
		})
		require.NoError(t, err)

		result, err := env.svc.Login(context.Background(), "a@x.com", "p1")
		require.NoError(t, err)

		msg, err := env.svc.DeleteAccount(context.Background(), result.AccessToken)
		require.NoError(t, err)
		require.NotEmpty(t, msg.Message)

		require.Equal(t, []string{"avatars/alice.png"}, env.artifacts.removedRefs())
		require.Equal(t, 0, env.sessions.count())

		_, err = env.creds.FindByID(context.Background(), result.User.ID)
		require.ErrorIs(t, err, model.ErrUserNotFound)

		// Logging in again is a fresh unauthorized, not a conflict.
		_, err = env.svc.Login(context.Background(), "a@x.com", "p1")
		requireAPIError(t, err, "UNAUTHORIZED", http.StatusUnauthorized)
	})

	t.Run("invalid token signature is rejected", func(t *testing.T) {
		env := newSessionTestEnv(t, false)

		_, err := env.svc.DeleteAccount(context.Background(), "not-a-signed-token")
		requireAPIError(t, err, "UNAUTHORIZED", http.StatusUnauthorized)
	})

	t.Run("deleted subject reports not found", func(t *testing.T) {
		env := newSessionTestEnv(t, false)
		result := env.registerAndLogin(t, "a@x.com", "alice", "p1")

		_, err := env.svc.DeleteAccount(context.Background(), result.AccessToken)
		require.NoError(t, err)

		// The signature is still valid but the subject is gone.
		_, err = env.svc.DeleteAccount(context.Background(), result.AccessToken)
		requireAPIError(t, err, "NOT_FOUND", http.StatusNotFound)
	})
}

func TestSessionLifecycleScenario(t *testing.T) {
	t.Parallel()

	env := newSessionTestEnv(t, false)

	registered, err := env.svc.Register(context.Background(), model.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "p1",
	})
	require.NoError(t, err)

	login, err := env.svc.Login(context.Background(), "a@x.com", "p1")
	require.NoError(t, err)
	require.Equal(t, registered.ID, login.User.ID)
	require.Equal(t, "a@x.com", login.User.Email)
	require.Equal(t, "alice", login.User.Username)

	refreshed, err := env.svc.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, login.AccessToken, refreshed.AccessToken)

	msg, err := env.svc.Logout(context.Background(), refreshed.AccessToken)
	require.NoError(t, err)
	require.NotEmpty(t, msg.Message)

	_, err = env.svc.Authenticate(context.Background(), refreshed.AccessToken)
	requireAPIError(t, err, "UNAUTHORIZED", http.StatusUnauthorized)
}
