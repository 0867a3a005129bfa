package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-auth-backend/internal/model"
	"go-auth-backend/pkg/apierror"
)

// CredentialStore is the narrow persistence surface for user records.
type CredentialStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByEmailOrUsername(ctx context.Context, email string, username string) (bool, error)
	Create(ctx context.Context, u model.User) error
	Update(ctx context.Context, u model.User) error
	Delete(ctx context.Context, id string) error
}

// SessionStore is the narrow persistence surface for session rows.
type SessionStore interface {
	FindByAccessToken(ctx context.Context, accessToken string) (model.Session, error)
	FindByRefreshToken(ctx context.Context, refreshToken string) (model.Session, error)
	FindByUserID(ctx context.Context, userID string) ([]model.Session, error)
	Create(ctx context.Context, s model.Session) error
	UpdateAccessToken(ctx context.Context, sessionID string, accessToken string) error
	UpdateTokens(ctx context.Context, sessionID string, accessToken string, refreshToken string, expiresAt time.Time) error
	DeleteByAccessToken(ctx context.Context, accessToken string) (int64, error)
	DeleteByUserID(ctx context.Context, userID string) error
}

// ArtifactStore deletes stored avatar artifacts by reference. The session
// manager never touches file bytes itself.
type ArtifactStore interface {
	Remove(reference string) error
}

type SessionService struct {
	creds         CredentialStore
	sessions      SessionStore
	artifacts     ArtifactStore
	hasher        *PasswordHasher
	tokens        *TokenAuthority
	refreshTTL    time.Duration
	rotateRefresh bool
}

// NewSessionService wires the session manager. rotateRefresh selects the
// refresh policy: false keeps the same refresh token across refreshes,
// true replaces it on every use.
func NewSessionService(
	creds CredentialStore,
	sessions SessionStore,
	artifacts ArtifactStore,
	hasher *PasswordHasher,
	tokens *TokenAuthority,
	refreshTTL time.Duration,
	rotateRefresh bool,
) (*SessionService, error) {
	if creds == nil || sessions == nil || hasher == nil || tokens == nil {
		return nil, fmt.Errorf("session service dependencies are incomplete")
	}
	if refreshTTL <= 0 {
		refreshTTL = 168 * time.Hour
	}

	return &SessionService{
		creds:         creds,
		sessions:      sessions,
		artifacts:     artifacts,
		hasher:        hasher,
		tokens:        tokens,
		refreshTTL:    refreshTTL,
		rotateRefresh: rotateRefresh,
	}, nil
}

func (s *SessionService) Register(ctx context.Context, req model.RegisterRequest) (model.PublicUser, error) {
	email := strings.TrimSpace(req.Email)
	username := strings.TrimSpace(req.Username)

	if email == "" || username == "" || req.Password == "" {
		return model.PublicUser{}, apierror.BadRequest("email, username and password are required", "")
	}

	exists, err := s.creds.ExistsByEmailOrUsername(ctx, email, username)
	if err != nil {
		return model.PublicUser{}, err
	}
	if exists {
		s.removeStagedAvatar(req.Avatar)
		return model.PublicUser{}, apierror.Conflict("email or username already in use", "")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.PublicUser{}, err
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Bio:          strings.TrimSpace(req.Bio),
		Avatar:       strings.TrimSpace(req.Avatar),
		Role:         model.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.creds.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			// Lost the race against a concurrent registration.
			s.removeStagedAvatar(req.Avatar)
			return model.PublicUser{}, apierror.Conflict("email or username already in use", "")
		}
		return model.PublicUser{}, err
	}

	return user.Public(), nil
}

// Login authenticates the credentials and opens the single allowed session.
// Unknown email and wrong password are deliberately indistinguishable.
func (s *SessionService) Login(ctx context.Context, email string, password string) (model.LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.LoginResult{}, errInvalidCredentials()
	}

	user, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.LoginResult{}, errInvalidCredentials()
		}
		return model.LoginResult{}, err
	}

	if !user.IsActive || !s.hasher.Verify(password, user.PasswordHash) {
		return model.LoginResult{}, errInvalidCredentials()
	}

	existing, err := s.sessions.FindByUserID(ctx, user.ID)
	if err != nil {
		return model.LoginResult{}, err
	}

	now := time.Now().UTC()
	for _, sess := range existing {
		if !sess.Expired(now) {
			return model.LoginResult{}, apierror.Conflict("user is already logged in", "")
		}
	}

	// Only expired leftovers remain; clear them before opening the new
	// session so the unique constraint does not trip on stale rows.
	if len(existing) > 0 {
		if err := s.sessions.DeleteByUserID(ctx, user.ID); err != nil {
			return model.LoginResult{}, err
		}
	}

	accessToken, err := s.tokens.IssueAccess(user.ID, user.Email)
	if err != nil {
		return model.LoginResult{}, err
	}

	session := model.Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		AccessToken:  accessToken,
		RefreshToken: s.tokens.IssueRefresh(),
		ExpiresAt:    now.Add(s.refreshTTL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, model.ErrSessionExists) {
			// A concurrent login won the insert race.
			return model.LoginResult{}, apierror.Conflict("user is already logged in", "")
		}
		return model.LoginResult{}, err
	}

	return model.LoginResult{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    "Bearer",
		User:         user.Public(),
	}, nil
}

// Refresh mints a new access token for the session holding the refresh
// token. Under the default policy the refresh token stays the same; with
// rotation enabled it is replaced and the old one stops working.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (model.RefreshResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return model.RefreshResult{}, apierror.BadRequest("refresh_token is required", "refresh_token")
	}

	session, err := s.sessions.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return model.RefreshResult{}, errInvalidRefreshToken()
		}
		return model.RefreshResult{}, err
	}

	now := time.Now().UTC()
	if session.Expired(now) {
		return model.RefreshResult{}, errInvalidRefreshToken()
	}

	user, err := s.creds.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.RefreshResult{}, errInvalidRefreshToken()
		}
		return model.RefreshResult{}, err
	}

	accessToken, err := s.tokens.IssueAccess(user.ID, user.Email)
	if err != nil {
		return model.RefreshResult{}, err
	}

	result := model.RefreshResult{AccessToken: accessToken, TokenType: "Bearer"}

	if s.rotateRefresh {
		result.RefreshToken = s.tokens.IssueRefresh()
		err = s.sessions.UpdateTokens(ctx, session.ID, accessToken, result.RefreshToken, now.Add(s.refreshTTL))
	} else {
		err = s.sessions.UpdateAccessToken(ctx, session.ID, accessToken)
	}
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			// Session disappeared between lookup and update (logout or
			// account deletion); treat as any other bad refresh token.
			return model.RefreshResult{}, errInvalidRefreshToken()
		}
		return model.RefreshResult{}, err
	}

	return result, nil
}

func (s *SessionService) Logout(ctx context.Context, accessToken string) (model.MessageResult, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return model.MessageResult{}, apierror.BadRequest("access token is required", "")
	}

	deleted, err := s.sessions.DeleteByAccessToken(ctx, accessToken)
	if err != nil {
		return model.MessageResult{}, err
	}
	if deleted == 0 {
		return model.MessageResult{}, apierror.BadRequest("invalid access token", "")
	}

	return model.MessageResult{Message: "logged out"}, nil
}

// Authenticate resolves the access token to its owning user via the
// session store. Signature checks alone are not enough here: a logged-out
// token must stop working even before it expires.
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (model.PublicUser, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return model.PublicUser{}, apierror.BadRequest("access token is required", "")
	}

	session, err := s.sessions.FindByAccessToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return model.PublicUser{}, apierror.Unauthorized("invalid or expired token")
		}
		return model.PublicUser{}, err
	}

	user, err := s.creds.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			// Orphaned session: the owner is gone.
			return model.PublicUser{}, apierror.NotFound("user not found", session.UserID)
		}
		return model.PublicUser{}, err
	}

	return user.Public(), nil
}

// Authorize is the single ownership predicate shared by every mutating
// profile path: the caller's session must belong to exactly the target
// user. "Not authenticated" and "not your resource" stay distinguishable
// without leaking whether other users exist.
func (s *SessionService) Authorize(ctx context.Context, accessToken string, targetUserID string) error {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return apierror.Unauthorized("authentication required")
	}

	session, err := s.sessions.FindByAccessToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return apierror.Unauthorized("authentication required")
		}
		return err
	}

	if session.UserID != targetUserID {
		return apierror.Unauthorized("you do not have access to this resource")
	}

	return nil
}

func (s *SessionService) GetProfile(ctx context.Context, userID string, accessToken string) (model.PublicUser, error) {
	if strings.TrimSpace(userID) == "" {
		return model.PublicUser{}, apierror.BadRequest("user id is required", "id")
	}

	if err := s.Authorize(ctx, accessToken, userID); err != nil {
		return model.PublicUser{}, err
	}

	user, err := s.creds.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.PublicUser{}, apierror.NotFound("user not found", userID)
		}
		return model.PublicUser{}, err
	}

	return user.Public(), nil
}

func (s *SessionService) UpdateProfile(ctx context.Context, userID string, update model.UserUpdate, accessToken string) (model.PublicUser, error) {
	if strings.TrimSpace(userID) == "" {
		return model.PublicUser{}, apierror.BadRequest("user id is required", "id")
	}

	if err := s.Authorize(ctx, accessToken, userID); err != nil {
		return model.PublicUser{}, err
	}

	user, err := s.creds.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.PublicUser{}, apierror.NotFound("user not found", userID)
		}
		return model.PublicUser{}, err
	}

	if update.Email != nil {
		user.Email = strings.TrimSpace(*update.Email)
	}
	if update.Username != nil {
		user.Username = strings.TrimSpace(*update.Username)
	}
	if update.FirstName != nil {
		user.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		user.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.Bio != nil {
		user.Bio = strings.TrimSpace(*update.Bio)
	}

	if user.Email == "" || user.Username == "" {
		return model.PublicUser{}, apierror.BadRequest("email and username cannot be empty", "")
	}

	user.UpdatedAt = time.Now().UTC()

	if err := s.creds.Update(ctx, user); err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			return model.PublicUser{}, apierror.Conflict("email or username already in use", "")
		}
		if errors.Is(err, model.ErrUserNotFound) {
			return model.PublicUser{}, apierror.NotFound("user not found", userID)
		}
		return model.PublicUser{}, err
	}

	return user.Public(), nil
}

// DeleteAccount removes the caller's account. The subject comes from the
// token signature, not a session lookup, so an account can be deleted even
// if its session row was already cleaned up.
func (s *SessionService) DeleteAccount(ctx context.Context, accessToken string) (model.MessageResult, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return model.MessageResult{}, apierror.BadRequest("access token is required", "")
	}

	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return model.MessageResult{}, err
	}

	user, err := s.creds.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.MessageResult{}, apierror.NotFound("user not found", claims.UserID)
		}
		return model.MessageResult{}, err
	}

	if user.Avatar != "" {
		s.removeStagedAvatar(user.Avatar)
	}

	// The store cascades session rows on user deletion; the explicit
	// delete keeps the invariant even against a store without cascade.
	if err := s.sessions.DeleteByUserID(ctx, user.ID); err != nil {
		return model.MessageResult{}, err
	}

	if err := s.creds.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.MessageResult{}, apierror.NotFound("user not found", user.ID)
		}
		return model.MessageResult{}, err
	}

	return model.MessageResult{Message: "account deleted"}, nil
}

func (s *SessionService) removeStagedAvatar(reference string) {
	reference = strings.TrimSpace(reference)
	if reference == "" || s.artifacts == nil {
		return
	}

	if err := s.artifacts.Remove(reference); err != nil {
		slog.Warn("failed to remove avatar artifact", "reference", reference, "error", err)
	}
}

func errInvalidCredentials() *apierror.APIError {
	return apierror.Unauthorized("invalid email or password")
}

func errInvalidRefreshToken() *apierror.APIError {
	return apierror.Unauthorized("invalid or expired refresh token")
}
