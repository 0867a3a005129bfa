package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go-auth-backend/internal/model"
)

type fakeCredentialStore struct {
	mu    sync.Mutex
	users map[string]model.User
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{users: map[string]model.User{}}
}

func (s *fakeCredentialStore) FindByID(ctx context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return user, nil
}

func (s *fakeCredentialStore) FindByEmail(ctx context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			return user, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *fakeCredentialStore) ExistsByEmailOrUsername(ctx context.Context, email string, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) ||
			strings.EqualFold(user.Username, strings.TrimSpace(username)) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeCredentialStore) Create(ctx context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) || strings.EqualFold(existing.Username, u.Username) {
			return model.ErrUserAlreadyExists
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *fakeCredentialStore) Update(ctx context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		return model.ErrUserNotFound
	}
	for id, existing := range s.users {
		if id == u.ID {
			continue
		}
		if strings.EqualFold(existing.Email, u.Email) || strings.EqualFold(existing.Username, u.Username) {
			return model.ErrUserAlreadyExists
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *fakeCredentialStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return model.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: map[string]model.Session{}}
}

func (s *fakeSessionStore) FindByAccessToken(ctx context.Context, accessToken string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.AccessToken == accessToken {
			return sess, nil
		}
	}
	return model.Session{}, model.ErrSessionNotFound
}

func (s *fakeSessionStore) FindByRefreshToken(ctx context.Context, refreshToken string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.RefreshToken == refreshToken {
			return sess, nil
		}
	}
	return model.Session{}, model.ErrSessionNotFound
}

func (s *fakeSessionStore) FindByUserID(ctx context.Context, userID string) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Session, 0, 1)
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *fakeSessionStore) Create(ctx context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sessions {
		if existing.UserID == sess.UserID {
			return model.ErrSessionExists
		}
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *fakeSessionStore) UpdateAccessToken(ctx context.Context, sessionID string, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return model.ErrSessionNotFound
	}
	sess.AccessToken = accessToken
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = sess
	return nil
}

func (s *fakeSessionStore) UpdateTokens(ctx context.Context, sessionID string, accessToken string, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return model.ErrSessionNotFound
	}
	sess.AccessToken = accessToken
	sess.RefreshToken = refreshToken
	sess.ExpiresAt = expiresAt
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = sess
	return nil
}

func (s *fakeSessionStore) DeleteByAccessToken(ctx context.Context, accessToken string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, sess := range s.sessions {
		if sess.AccessToken == accessToken {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *fakeSessionStore) DeleteByUserID(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}

// expire rewinds a session's expiry so refresh sees it as stale.
func (s *fakeSessionStore) expire(refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if sess.RefreshToken == refreshToken {
			sess.ExpiresAt = time.Now().UTC().Add(-time.Hour)
			s.sessions[id] = sess
		}
	}
}

func (s *fakeSessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

type fakeArtifactStore struct {
	mu      sync.Mutex
	removed []string
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{}
}

func (s *fakeArtifactStore) Remove(reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removed = append(s.removed, reference)
	return nil
}

func (s *fakeArtifactStore) removedRefs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.removed))
	copy(out, s.removed)
	return out
}
