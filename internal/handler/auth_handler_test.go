package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/trendz-app/auth-service/internal/config"
	"github.com/trendz-app/auth-service/internal/hashing"
	"github.com/trendz-app/auth-service/internal/models"
	pgrepo "github.com/trendz-app/auth-service/internal/repository/postgres"
	redisrepo "github.com/trendz-app/auth-service/internal/repository/redis"
	"github.com/trendz-app/auth-service/internal/search"
	"github.com/trendz-app/auth-service/internal/service"
)

// --- minimal in-memory fakes behind the service contracts ---

type memUserStore struct {
	mu      sync.Mutex
	byEmail map[string]*models.User
}

func (m *memUserStore) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[user.Email]; ok {
		return pgrepo.ErrEmailTaken
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	m.byEmail[user.Email] = &clone
	return nil
}

func (m *memUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.byEmail {
		if user.ID == id {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgrepo.ErrUserNotFound
}

func (m *memUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byEmail[email]
	if !ok {
		return nil, pgrepo.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (m *memUserStore) MarkVerified(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.byEmail {
		if user.ID == id {
			user.IsVerified = true
			return nil
		}
	}
	return pgrepo.ErrUserNotFound
}

type memOTPStore struct {
	mu      sync.Mutex
	records map[string]models.OTPRecord
}

func (m *memOTPStore) Save(ctx context.Context, record *models.OTPRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Email] = *record
	return nil
}

func (m *memOTPStore) Consume(ctx context.Context, email, codeHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[email]
	if !ok {
		return redisrepo.ErrOTPNotFound
	}
	if !now.Before(record.ExpiresAt) {
		delete(m.records, email)
		return redisrepo.ErrOTPExpired
	}
	if record.CodeHash != codeHash {
		return redisrepo.ErrOTPMismatch
	}
	delete(m.records, email)
	return nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func (m *memSessionStore) Create(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.Token] = *session
	return nil
}

func (m *memSessionStore) Get(ctx context.Context, token string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[token]
	if !ok {
		return nil, redisrepo.ErrSessionNotFound
	}
	clone := session
	return &clone, nil
}

func (m *memSessionStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *memSessionStore) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for token, session := range m.sessions {
		if session.UserID == userID {
			delete(m.sessions, token)
			count++
		}
	}
	return count, nil
}

type memLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (m *memLimiter) RecordIssue(ctx context.Context, email string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[email]++
	return m.counts[email], nil
}

func (m *memLimiter) Reset(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counts, email)
	return nil
}

type memDispatcher struct {
	mu       sync.Mutex
	lastCode string
}

func (m *memDispatcher) SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCode = code
	return nil
}

func (m *memDispatcher) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCode
}

type nopRecorder struct{}

func (nopRecorder) Record(ctx context.Context, event models.AuthEvent) {}

type memIndexer struct {
	docs []search.UserDocument
}

func (m *memIndexer) Index(ctx context.Context, user *models.User) error { return nil }

func (m *memIndexer) Search(ctx context.Context, query string, limit int) ([]search.UserDocument, error) {
	return m.docs, nil
}

// --- server under test ---

func newTestServer(t *testing.T) (*httptest.Server, *memDispatcher) {
	t.Helper()

	cfg := &config.Config{Environment: "development"}
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.OTP.CodeLength = 6
	cfg.OTP.TTL = 10 * time.Minute
	cfg.OTP.Retention = 24 * time.Hour
	cfg.OTP.IssueLimit = 5
	cfg.OTP.IssueWindow = time.Hour
	cfg.OTP.BcryptCost = bcrypt.MinCost
	cfg.Session.CookieName = "trendz_session"
	cfg.Session.TTL = time.Hour

	dispatcher := &memDispatcher{}
	svc := service.NewAuthService(
		&memUserStore{byEmail: make(map[string]*models.User)},
		&memOTPStore{records: make(map[string]models.OTPRecord)},
		&memSessionStore{sessions: make(map[string]models.Session)},
		&memLimiter{counts: make(map[string]int64)},
		dispatcher,
		nopRecorder{},
		&memIndexer{docs: []search.UserDocument{{Username: "alice"}}},
		hashing.NewHasher(cfg),
		cfg,
	)

	authHandler := NewAuthHandler(svc, cfg, zap.NewNop())
	router := NewRouter(authHandler, cfg, zap.NewNop())

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, dispatcher
}

func postJSON(t *testing.T, client *http.Client, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) Response {
	t.Helper()
	defer resp.Body.Close()
	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "trendz_session" {
			return cookie
		}
	}
	return nil
}

func TestAuthFlow_RegisterVerifyMe(t *testing.T) {
	server, dispatcher := newTestServer(t)
	client := server.Client()

	resp := postJSON(t, client, server.URL+"/api/v1/auth/register", map[string]string{
		"email":    "alice@example.com",
		"username": "alice",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeResponse(t, resp)
	assert.True(t, body.Success)

	code := dispatcher.last()
	require.NotEmpty(t, code)

	resp = postJSON(t, client, server.URL+"/api/v1/auth/otp/verify", map[string]string{
		"email": "alice@example.com",
		"code":  code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookie := sessionCookie(t, resp)
	require.NotNil(t, cookie, "verify must set the session cookie")
	assert.True(t, cookie.HttpOnly)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v1/auth/me", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	meResp, err := client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, meResp.StatusCode)

	me := decodeResponse(t, meResp)
	require.True(t, me.Success)
	data, ok := me.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "alice", data["username"])
	assert.Equal(t, true, data["is_verified"])
	assert.NotContains(t, data, "password_hash")
}

func TestMe_WithoutCookie(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := server.Client().Get(server.URL + "/api/v1/auth/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestVerify_WrongCode(t *testing.T) {
	server, dispatcher := newTestServer(t)
	client := server.Client()

	resp := postJSON(t, client, server.URL+"/api/v1/auth/register", map[string]string{
		"email":    "alice@example.com",
		"username": "alice",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	wrong := "000000"
	if wrong == dispatcher.last() {
		wrong = "000001"
	}
	resp = postJSON(t, client, server.URL+"/api/v1/auth/otp/verify", map[string]string{
		"email": "alice@example.com",
		"code":  wrong,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, sessionCookie(t, resp))
}

func TestLoginAndLogout_Idempotent(t *testing.T) {
	server, dispatcher := newTestServer(t)
	client := server.Client()

	resp := postJSON(t, client, server.URL+"/api/v1/auth/register", map[string]string{
		"email":    "alice@example.com",
		"username": "alice",
		"password": "hunter2hunter2",
	})
	resp.Body.Close()
	resp = postJSON(t, client, server.URL+"/api/v1/auth/otp/verify", map[string]string{
		"email": "alice@example.com",
		"code":  dispatcher.last(),
	})
	resp.Body.Close()

	resp = postJSON(t, client, server.URL+"/api/v1/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookie := sessionCookie(t, resp)
	require.NotNil(t, cookie)
	resp.Body.Close()

	logout := func() *http.Response {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/api/v1/auth/logout", nil)
		require.NoError(t, err)
		req.AddCookie(cookie)
		out, err := client.Do(req)
		require.NoError(t, err)
		return out
	}

	first := logout()
	assert.Equal(t, http.StatusOK, first.StatusCode)
	first.Body.Close()

	// a second logout with the same dead cookie still succeeds
	second := logout()
	assert.Equal(t, http.StatusOK, second.StatusCode)
	second.Body.Close()

	// the session is gone server-side
	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v1/auth/me", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	meResp, err := client.Do(req)
	require.NoError(t, err)
	defer meResp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, meResp.StatusCode)
}

func TestLogin_GenericAuthError(t *testing.T) {
	server, _ := newTestServer(t)
	client := server.Client()

	resp := postJSON(t, client, server.URL+"/api/v1/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "whatever123",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeResponse(t, resp)
	assert.Equal(t, "unauthorized", body.Error)
}

func TestVerify_AuthErrorsDoNotRevealAccounts(t *testing.T) {
	server, dispatcher := newTestServer(t)
	client := server.Client()

	resp := postJSON(t, client, server.URL+"/api/v1/auth/register", map[string]string{
		"email":    "alice@example.com",
		"username": "alice",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	wrong := "000000"
	if wrong == dispatcher.last() {
		wrong = "000001"
	}

	// unregistered email vs registered email with a wrong code: both 401
	// with byte-identical bodies, so the endpoint cannot be used to probe
	// which emails have accounts
	unknownResp := postJSON(t, client, server.URL+"/api/v1/auth/otp/verify", map[string]string{
		"email": "nobody@example.com",
		"code":  wrong,
	})
	require.Equal(t, http.StatusUnauthorized, unknownResp.StatusCode)
	unknown := decodeResponse(t, unknownResp)

	knownResp := postJSON(t, client, server.URL+"/api/v1/auth/otp/verify", map[string]string{
		"email": "alice@example.com",
		"code":  wrong,
	})
	require.Equal(t, http.StatusUnauthorized, knownResp.StatusCode)
	known := decodeResponse(t, knownResp)

	assert.Equal(t, unknown, known)
	assert.Equal(t, "unauthorized", known.Error)

	// login failures look the same too
	loginResp := postJSON(t, client, server.URL+"/api/v1/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, loginResp.StatusCode)
	login := decodeResponse(t, loginResp)
	assert.Equal(t, "unauthorized", login.Error)
}

func TestSearch_RequiresSession(t *testing.T) {
	server, dispatcher := newTestServer(t)
	client := server.Client()

	resp, err := client.Get(server.URL + "/api/v1/users/search?q=alice")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	reg := postJSON(t, client, server.URL+"/api/v1/auth/register", map[string]string{
		"email":    "alice@example.com",
		"username": "alice",
		"password": "hunter2hunter2",
	})
	reg.Body.Close()
	verify := postJSON(t, client, server.URL+"/api/v1/auth/otp/verify", map[string]string{
		"email": "alice@example.com",
		"code":  dispatcher.last(),
	})
	cookie := sessionCookie(t, verify)
	require.NotNil(t, cookie)
	verify.Body.Close()

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/users/search?q=alice", server.URL), nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	searchResp, err := client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, searchResp.StatusCode)

	body := decodeResponse(t, searchResp)
	assert.True(t, body.Success)
}
