package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trendz-app/auth-service/internal/client"
	"github.com/trendz-app/auth-service/internal/models"
	"github.com/trendz-app/auth-service/internal/util"
)

const (
	sessionPrefix      = "session:"
	userSessionsPrefix = "user_sessions:"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore maps opaque tokens to session records. A per-user set of
// tokens supports bulk invalidation. The set TTL tracks the longest-lived
// session so abandoned sets do not accumulate.
type SessionStore struct {
	client *client.RedisClient
	ttl    time.Duration
}

func NewSessionStore(client *client.RedisClient, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// Create stores the session and registers its token under the owning user
func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	userKey := userSessionsPrefix + session.UserID.String()

	pipe := s.client.Pipeline()
	pipe.Set(ctx, sessionPrefix+session.Token, raw, s.ttl)
	pipe.SAdd(ctx, userKey, session.Token)
	pipe.Expire(ctx, userKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to create session",
			zap.String("user_id", session.UserID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}

	util.Debug("Session created",
		zap.String("user_id", session.UserID.String()),
		zap.Time("expires_at", session.ExpiresAt))
	return nil
}

// Get resolves a token to its session. Unknown and expired tokens are
// indistinguishable once Redis evicts the key.
func (s *SessionStore) Get(ctx context.Context, token string) (*models.Session, error) {
	raw, err := s.client.Get(ctx, sessionPrefix+token)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	session.Token = token

	return &session, nil
}

// Delete removes a session. Deleting a token that no longer exists is not
// an error, so repeated logouts succeed.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	session, err := s.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, sessionPrefix+token)
	pipe.SRem(ctx, userSessionsPrefix+session.UserID.String(), token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	util.Debug("Session deleted", zap.String("user_id", session.UserID.String()))
	return nil
}

// DeleteAllForUser invalidates every active session belonging to a user
func (s *SessionStore) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	userKey := userSessionsPrefix + userID.String()

	tokens, err := s.client.SMembers(ctx, userKey)
	if err != nil {
		return 0, fmt.Errorf("failed to list user sessions: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, sessionPrefix+token)
	}
	keys = append(keys, userKey)

	if _, err := s.client.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}

	util.Info("All sessions invalidated for user",
		zap.String("user_id", userID.String()),
		zap.Int("count", len(tokens)))
	return len(tokens), nil
}
