package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trendz-app/auth-service/internal/config"
	"github.com/trendz-app/auth-service/internal/hashing"
	"github.com/trendz-app/auth-service/internal/mailer"
	"github.com/trendz-app/auth-service/internal/models"
	pgrepo "github.com/trendz-app/auth-service/internal/repository/postgres"
	redisrepo "github.com/trendz-app/auth-service/internal/repository/redis"
	"github.com/trendz-app/auth-service/internal/search"
	"github.com/trendz-app/auth-service/internal/util"
)

const sessionTokenBytes = 32

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
)

// UserStore is the credential and profile store contract
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	MarkVerified(ctx context.Context, id uuid.UUID) error
}

// OTPStore holds at most one pending verification record per email
type OTPStore interface {
	Save(ctx context.Context, record *models.OTPRecord) error
	Consume(ctx context.Context, email, codeHash string, now time.Time) error
}

// SessionStore maps opaque tokens to sessions
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, token string) (*models.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// RateLimiter bounds OTP issue frequency per email
type RateLimiter interface {
	RecordIssue(ctx context.Context, email string) (int64, error)
	Reset(ctx context.Context, email string) error
}

// EventRecorder receives best-effort auth events
type EventRecorder interface {
	Record(ctx context.Context, event models.AuthEvent)
}

// UserIndexer maintains the public user directory
type UserIndexer interface {
	Index(ctx context.Context, user *models.User) error
	Search(ctx context.Context, query string, limit int) ([]search.UserDocument, error)
}

// RegisterRequest carries the fields accepted at signup
type RegisterRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// AuthService implements the registration, verification, and session flows
type AuthService struct {
	users      UserStore
	otps       OTPStore
	sessions   SessionStore
	limiter    RateLimiter
	dispatcher mailer.Dispatcher
	recorder   EventRecorder
	directory  UserIndexer
	hasher     *hashing.Hasher

	otpCfg     config.OTPConfig
	sessionCfg config.SessionConfig
}

func NewAuthService(
	users UserStore,
	otps OTPStore,
	sessions SessionStore,
	limiter RateLimiter,
	dispatcher mailer.Dispatcher,
	recorder EventRecorder,
	directory UserIndexer,
	hasher *hashing.Hasher,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		users:      users,
		otps:       otps,
		sessions:   sessions,
		limiter:    limiter,
		dispatcher: dispatcher,
		recorder:   recorder,
		directory:  directory,
		hasher:     hasher,
		otpCfg:     cfg.OTP,
		sessionCfg: cfg.Session,
	}
}

// Register creates an unverified account and issues the first verification
// code. The directory index update runs alongside the OTP dispatch since
// neither depends on the other.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest, ip string) (*models.User, error) {
	email := util.NormalizeEmail(req.Email)
	username := util.SanitizeInput(req.Username)

	if !emailPattern.MatchString(email) {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 3-30 letters, digits, or underscores", ErrInvalidInput)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	passwordHash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	user := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		DisplayName:  util.SanitizeInput(req.DisplayName),
	}
	if user.DisplayName == "" {
		user.DisplayName = username
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, pgrepo.ErrEmailTaken):
			return nil, ErrEmailTaken
		case errors.Is(err, pgrepo.ErrUsernameTaken):
			return nil, ErrUsernameTaken
		default:
			return nil, fmt.Errorf("%w: %v", ErrDependency, err)
		}
	}

	s.recorder.Record(ctx, s.event("user_registered", email, user.ID, ip))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.issueAndDispatch(gctx, email, ip)
	})
	g.Go(func() error {
		if err := s.directory.Index(gctx, user); err != nil {
			util.Warn("Failed to index user after registration",
				zap.String("user_id", user.ID.String()),
				zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	util.Info("User registered",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username))
	return user.Sanitize(), nil
}

// RequestOTP issues a fresh verification code for a registered email. A new
// code replaces any pending one.
func (s *AuthService) RequestOTP(ctx context.Context, rawEmail, ip string) error {
	email := util.NormalizeEmail(rawEmail)
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}

	if err := s.issueAndDispatch(ctx, email, ip); err != nil {
		return err
	}

	s.recorder.Record(ctx, s.event("otp_requested", email, user.ID, ip))
	return nil
}

func (s *AuthService) issueAndDispatch(ctx context.Context, email, ip string) error {
	count, err := s.limiter.RecordIssue(ctx, email)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}
	if count > int64(s.otpCfg.IssueLimit) {
		util.Warn("OTP issue rate limit exceeded",
			zap.String("email", email),
			zap.Int64("count", count))
		return ErrTooManyRequests
	}

	code, err := s.hasher.GenerateOTP()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}

	now := time.Now().UTC()
	record := &models.OTPRecord{
		Email:     email,
		CodeHash:  s.hasher.HashOTP(code),
		CreatedAt: now,
		ExpiresAt: now.Add(s.otpCfg.TTL),
	}
	if err := s.otps.Save(ctx, record); err != nil {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}

	if err := s.dispatcher.SendOTP(ctx, email, code, record.ExpiresAt); err != nil {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return nil
}

// VerifyOTP consumes the pending code, marks the account verified, and
// opens a session. The consumed code can never be replayed.
func (s *AuthService) VerifyOTP(ctx context.Context, rawEmail, code, ip string) (*models.User, *models.Session, error) {
	email := util.NormalizeEmail(rawEmail)
	if !emailPattern.MatchString(email) || code == "" {
		return nil, nil, fmt.Errorf("%w: email and code are required", ErrInvalidInput)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	err = s.otps.Consume(ctx, email, s.hasher.HashOTP(code), time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, redisrepo.ErrOTPNotFound):
			return nil, nil, ErrOTPNotFound
		case errors.Is(err, redisrepo.ErrOTPExpired):
			return nil, nil, ErrOTPExpired
		case errors.Is(err, redisrepo.ErrOTPMismatch):
			s.recorder.Record(ctx, s.event("otp_mismatch", email, user.ID, ip))
			return nil, nil, ErrOTPMismatch
		default:
			return nil, nil, fmt.Errorf("%w: %v", ErrDependency, err)
		}
	}

	if !user.IsVerified {
		if err := s.users.MarkVerified(ctx, user.ID); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrDependency, err)
		}
		user.IsVerified = true
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		util.Warn("Failed to reset OTP issue counter",
			zap.String("email", email),
			zap.Error(err))
	}

	session, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.recorder.Record(ctx, s.event("otp_verified", email, user.ID, ip))

	if err := s.directory.Index(ctx, user); err != nil {
		util.Warn("Failed to reindex user after verification",
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
	}

	util.Info("User verified",
		zap.String("user_id", user.ID.String()))
	return user.Sanitize(), session, nil
}

// Login authenticates by email and password. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, rawEmail, password, ip string) (*models.User, *models.Session, error) {
	email := util.NormalizeEmail(rawEmail)
	if !emailPattern.MatchString(email) || password == "" {
		return nil, nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			s.recorder.Record(ctx, s.event("login_failed", email, uuid.Nil, ip))
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	ok, err := s.hasher.ComparePassword(password, user.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	if !ok {
		s.recorder.Record(ctx, s.event("login_failed", email, user.ID, ip))
		return nil, nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		return nil, nil, ErrEmailNotVerified
	}

	session, err := s.openSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.recorder.Record(ctx, s.event("login_succeeded", email, user.ID, ip))

	util.Info("User logged in", zap.String("user_id", user.ID.String()))
	return user.Sanitize(), session, nil
}

// Logout tears down the session server-side. Succeeds even when the token
// is unknown, so repeated logouts are safe.
func (s *AuthService) Logout(ctx context.Context, token, ip string) error {
	if token == "" {
		return nil
	}

	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, redisrepo.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}

	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}

	s.recorder.Record(ctx, s.event("logout", "", session.UserID, ip))
	return nil
}

// Authenticate resolves a session token to its owning user id
func (s *AuthService) Authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrUnauthorized
	}

	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, redisrepo.ErrSessionNotFound) {
			return uuid.Nil, ErrUnauthorized
		}
		return uuid.Nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return session.UserID, nil
}

// CurrentUser returns the sanitized profile for an authenticated user id.
// A session whose user no longer exists counts as unauthenticated.
func (s *AuthService) CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return user.Sanitize(), nil
}

// InvalidateAllSessions revokes every session belonging to the user
func (s *AuthService) InvalidateAllSessions(ctx context.Context, userID uuid.UUID, ip string) (int, error) {
	count, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	s.recorder.Record(ctx, s.event("sessions_invalidated", "", userID, ip))
	return count, nil
}

// SearchUsers queries the public directory
func (s *AuthService) SearchUsers(ctx context.Context, query string, limit int) ([]search.UserDocument, error) {
	query = util.SanitizeInput(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidInput)
	}

	docs, err := s.directory.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return docs, nil
}

func (s *AuthService) openSession(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	token, err := hashing.GenerateToken(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}

	now := time.Now().UTC()
	session := &models.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionCfg.TTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return session, nil
}

func (s *AuthService) event(eventType, email string, userID uuid.UUID, ip string) models.AuthEvent {
	event := models.AuthEvent{
		EventType: eventType,
		IPAddress: ip,
		CreatedAt: time.Now().UTC(),
	}
	if email != "" {
		event.EmailHash = hashEmail(email)
	}
	if userID != uuid.Nil {
		event.UserID = userID.String()
	}
	return event
}

// hashEmail keeps raw addresses out of the event pipeline
func hashEmail(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
