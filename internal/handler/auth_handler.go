package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/trendz-app/auth-service/internal/config"
	"github.com/trendz-app/auth-service/internal/service"
	"github.com/trendz-app/auth-service/internal/util"
)

// AuthHandler handles HTTP requests for the auth flows
type AuthHandler struct {
	authService *service.AuthService
	sessionCfg  config.SessionConfig
	secure      bool
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, cfg *config.Config, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		sessionCfg:  cfg.Session,
		secure:      cfg.IsProduction(),
		logger:      logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers the auth and directory routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/otp/request", h.RequestOTP)
		r.Post("/otp/verify", h.VerifyOTP)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireSession)
			r.Get("/me", h.CurrentUser)
		})
	})

	router.Route("/users", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.RequireSession)
			r.Get("/search", h.SearchUsers)
		})
	})
}

// Register handles account creation and issues the first verification code
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "Invalid request body")
		return
	}

	user, err := h.authService.Register(ctx, req, realIP(r))
	if err != nil {
		h.handleError(w, err, "Failed to register")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(user, "Registered, check your email for a verification code"))
	h.logger.Info("User registered via HTTP",
		util.String("user_id", user.ID.String()),
		util.Duration("duration", time.Since(startTime)),
	)
}

type otpRequestBody struct {
	Email string `json:"email"`
}

// RequestOTP issues a fresh verification code
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req otpRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "Invalid request body")
		return
	}

	if err := h.authService.RequestOTP(ctx, req.Email, realIP(r)); err != nil {
		h.handleError(w, err, "Failed to send verification code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Verification code sent"))
}

type otpVerifyBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyOTP consumes the code and opens a session on success
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req otpVerifyBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "Invalid request body")
		return
	}

	user, session, err := h.authService.VerifyOTP(ctx, req.Email, req.Code, realIP(r))
	if err != nil {
		h.handleError(w, err, "Verification failed")
		return
	}

	h.setSessionCookie(w, session.Token, session.ExpiresAt)
	h.respondWithJSON(w, http.StatusOK, successResponse(user, "Email verified"))
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates with email and password
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, service.ErrInvalidInput, "Invalid request body")
		return
	}

	user, session, err := h.authService.Login(ctx, req.Email, req.Password, realIP(r))
	if err != nil {
		h.handleError(w, err, "Login failed")
		return
	}

	h.setSessionCookie(w, session.Token, session.ExpiresAt)
	h.respondWithJSON(w, http.StatusOK, successResponse(user, "Logged in"))
}

// Logout deletes the session server-side and clears the cookie. Succeeds
// with or without an active session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := h.sessionToken(r)
	if err := h.authService.Logout(ctx, token, realIP(r)); err != nil {
		h.handleError(w, err, "Logout failed")
		return
	}

	h.clearSessionCookie(w)
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}

// CurrentUser returns the authenticated user's profile
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := UserIDFromContext(ctx)
	if !ok {
		h.respondWithError(w, http.StatusUnauthorized, service.ErrUnauthorized, "Authentication required")
		return
	}

	user, err := h.authService.CurrentUser(ctx, userID)
	if err != nil {
		h.handleError(w, err, "Failed to load profile")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(user, ""))
}

// SearchUsers queries the public user directory
func (h *AuthHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	docs, err := h.authService.SearchUsers(ctx, query, limit)
	if err != nil {
		h.handleError(w, err, "Search failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(docs, ""))
}

// Helper Methods

func (h *AuthHandler) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionCfg.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionCfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionCfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// respondWithJSON sends a JSON response
func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// handleError maps a service error to a status code. Server-side failures
// are reported as a bare dependency error so internals never reach clients,
// and every 401 carries the same body: distinguishing a missing account from
// a wrong password or a wrong/expired/absent code would let a caller probe
// which emails are registered.
func (h *AuthHandler) handleError(w http.ResponseWriter, err error, message string) {
	statusCode := getStatusCode(err)
	public := err
	switch {
	case statusCode >= http.StatusInternalServerError:
		h.logger.Error("Internal error", util.ErrorField(err))
		public = service.ErrDependency
	case statusCode == http.StatusUnauthorized:
		h.logger.Warn("Authentication failure", util.ErrorField(err))
		public = service.ErrUnauthorized
	}
	h.respondWithError(w, statusCode, public, message)
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrOTPNotFound),
		errors.Is(err, service.ErrOTPExpired),
		errors.Is(err, service.ErrOTPMismatch),
		errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrEmailNotVerified):
		return http.StatusForbidden
	case errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrDependency):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func realIP(r *http.Request) string {
	return r.RemoteAddr
}
