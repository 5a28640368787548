package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trendz-app/auth-service/internal/models"
	pgrepo "github.com/trendz-app/auth-service/internal/repository/postgres"
	redisrepo "github.com/trendz-app/auth-service/internal/repository/redis"
	"github.com/trendz-app/auth-service/internal/search"
)

// --- in-memory fakes for the store and dispatcher contracts ---

type fakeUserStore struct {
	mu      sync.Mutex
	byEmail map[string]*models.User
	byID    map[uuid.UUID]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byEmail: make(map[string]*models.User),
		byID:    make(map[uuid.UUID]*models.User),
	}
}

func (f *fakeUserStore) Create(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.byEmail[user.Email]; ok {
		return pgrepo.ErrEmailTaken
	}
	for _, existing := range f.byEmail {
		if existing.Username == user.Username {
			return pgrepo.ErrUsernameTaken
		}
	}

	user.ID = uuid.New()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	clone := *user
	f.byEmail[user.Email] = &clone
	f.byID[user.ID] = &clone
	return nil
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.byID[id]
	if !ok {
		return nil, pgrepo.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.byEmail[email]
	if !ok {
		return nil, pgrepo.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (f *fakeUserStore) MarkVerified(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.byID[id]
	if !ok {
		return pgrepo.ErrUserNotFound
	}
	user.IsVerified = true
	return nil
}

func (f *fakeUserStore) delete(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if user, ok := f.byID[id]; ok {
		delete(f.byEmail, user.Email)
		delete(f.byID, id)
	}
}

type fakeOTPStore struct {
	mu      sync.Mutex
	records map[string]models.OTPRecord
}

func newFakeOTPStore() *fakeOTPStore {
	return &fakeOTPStore{records: make(map[string]models.OTPRecord)}
}

func (f *fakeOTPStore) Save(ctx context.Context, record *models.OTPRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[record.Email] = *record
	return nil
}

func (f *fakeOTPStore) Consume(ctx context.Context, email, codeHash string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[email]
	if !ok {
		return redisrepo.ErrOTPNotFound
	}
	if !now.Before(record.ExpiresAt) {
		delete(f.records, email)
		return redisrepo.ErrOTPExpired
	}
	if record.CodeHash != codeHash {
		return redisrepo.ErrOTPMismatch
	}
	delete(f.records, email)
	return nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]models.Session)}
}

func (f *fakeSessionStore) Create(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.Token] = *session
	return nil
}

func (f *fakeSessionStore) Get(ctx context.Context, token string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[token]
	if !ok {
		return nil, redisrepo.ErrSessionNotFound
	}
	clone := session
	return &clone, nil
}

func (f *fakeSessionStore) Delete(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, token)
	return nil
}

func (f *fakeSessionStore) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for token, session := range f.sessions {
		if session.UserID == userID {
			delete(f.sessions, token)
			count++
		}
	}
	return count, nil
}

type fakeRateLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeRateLimiter() *fakeRateLimiter {
	return &fakeRateLimiter{counts: make(map[string]int64)}
}

func (f *fakeRateLimiter) RecordIssue(ctx context.Context, email string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[email]++
	return f.counts[email], nil
}

func (f *fakeRateLimiter) Reset(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, email)
	return nil
}

type fakeDispatcher struct {
	mu       sync.Mutex
	sent     []string
	lastCode string
	sendErr  error
}

func (f *fakeDispatcher) SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, email)
	f.lastCode = code
	return nil
}

func (f *fakeDispatcher) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCode
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []models.AuthEvent
}

func (f *fakeRecorder) Record(ctx context.Context, event models.AuthEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeRecorder) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, 0, len(f.events))
	for _, event := range f.events {
		types = append(types, event.EventType)
	}
	return types
}

type fakeIndexer struct {
	mu      sync.Mutex
	indexed []string
	docs    []search.UserDocument
}

func (f *fakeIndexer) Index(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, user.Username)
	return nil
}

func (f *fakeIndexer) Search(ctx context.Context, query string, limit int) ([]search.UserDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs, nil
}
