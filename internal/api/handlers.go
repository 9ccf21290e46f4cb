package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/passkeyhq/passkey-backend/internal/service"
	"github.com/passkeyhq/passkey-backend/internal/storage"
	"github.com/passkeyhq/passkey-backend/pkg/config"
	"github.com/passkeyhq/passkey-backend/pkg/middleware"
)

// Handlers holds the HTTP handler dependencies
type Handlers struct {
	webauthn *service.WebAuthnService
	store    storage.Store
	logger   *zap.Logger
}

// NewHandlers creates the API handlers
func NewHandlers(webauthn *service.WebAuthnService, store storage.Store, logger *zap.Logger) *Handlers {
	return &Handlers{
		webauthn: webauthn,
		store:    store,
		logger:   logger.Named("api"),
	}
}

type beginRegistrationRequest struct {
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"display_name"`
}

type beginLoginRequest struct {
	Username string `json:"username" binding:"required"`
}

// ceremonyStatus maps service errors to HTTP status codes.
// registration selects 400 over 401 for verification failures, since a
// failed attestation on an account being created is a bad request, not
// a rejected login.
func ceremonyStatus(err error, registration bool) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrChallengeExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrReplayDetected):
		return http.StatusConflict
	case errors.Is(err, service.ErrVerification):
		if registration {
			return http.StatusBadRequest
		}
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) ceremonyError(c *gin.Context, err error, registration bool) {
	status := ceremonyStatus(err, registration)
	if status == http.StatusInternalServerError {
		h.logger.Error("internal error", zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// Status reports service and storage health.
func (h *Handlers) Status(c *gin.Context) {
	status := StatusResponse{
		Status:       "ok",
		Service:      "passkey-backend",
		APIVersion:   APIVersion,
		Capabilities: Capabilities,
	}
	if err := h.store.Ping(c.Request.Context()); err != nil {
		status.Status = "unavailable"
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

// BeginRegistration handles POST /auth/register/begin
func (h *Handlers) BeginRegistration(c *gin.Context) {
	var req beginRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	options, err := h.webauthn.BeginRegistration(c.Request.Context(), req.Username, req.DisplayName)
	if err != nil {
		h.ceremonyError(c, err, true)
		return
	}
	c.JSON(http.StatusOK, options)
}

// FinishRegistration handles POST /auth/register/finish
// The attestation response is the raw request body; the challenge is
// identified by the challenge_id query parameter.
func (h *Handlers) FinishRegistration(c *gin.Context) {
	result, err := h.webauthn.FinishRegistration(c.Request.Context(), c.Query("challenge_id"), c.Request.Body)
	if err != nil {
		h.ceremonyError(c, err, true)
		return
	}
	c.JSON(http.StatusOK, result)
}

// BeginLogin handles POST /auth/login/begin
func (h *Handlers) BeginLogin(c *gin.Context) {
	var req beginLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}

	options, err := h.webauthn.BeginLogin(c.Request.Context(), req.Username)
	if err != nil {
		h.ceremonyError(c, err, false)
		return
	}
	c.JSON(http.StatusOK, options)
}

// BeginDiscoverableLogin handles POST /auth/login/discoverable/begin
func (h *Handlers) BeginDiscoverableLogin(c *gin.Context) {
	options, err := h.webauthn.BeginDiscoverableLogin(c.Request.Context())
	if err != nil {
		h.ceremonyError(c, err, false)
		return
	}
	c.JSON(http.StatusOK, options)
}

// FinishLogin handles POST /auth/login/finish
func (h *Handlers) FinishLogin(c *gin.Context) {
	result, err := h.webauthn.FinishLogin(c.Request.Context(), c.Query("challenge_id"), c.Request.Body)
	if err != nil {
		h.ceremonyError(c, err, false)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Account handles GET /auth/me
func (h *Handlers) Account(c *gin.Context) {
	username, ok := middleware.Username(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.webauthn.Account(c.Request.Context(), username)
	if err != nil {
		h.ceremonyError(c, err, false)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListCredentials handles GET /auth/credentials
func (h *Handlers) ListCredentials(c *gin.Context) {
	username, ok := middleware.Username(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	credentials, err := h.webauthn.UserCredentials(c.Request.Context(), username)
	if err != nil {
		h.ceremonyError(c, err, false)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": credentials})
}

// Router builds the gin engine with all routes registered. The browser
// origin allowed by CORS is the relying-party origin: any other origin
// would fail ceremony verification anyway.
func Router(h *Handlers, tokens *service.TokenService, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.WebAuthn.RPOrigin},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/status", h.Status)

	auth := router.Group("/auth")
	if cfg.RateLimit.Enabled {
		auth.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit, logger)))
	}
	{
		auth.POST("/register/begin", h.BeginRegistration)
		auth.POST("/register/finish", h.FinishRegistration)
		auth.POST("/login/begin", h.BeginLogin)
		auth.POST("/login/finish", h.FinishLogin)
		auth.POST("/login/discoverable/begin", h.BeginDiscoverableLogin)

		protected := auth.Group("")
		protected.Use(middleware.Auth(tokens))
		{
			protected.GET("/me", h.Account)
			protected.GET("/credentials", h.ListCredentials)
		}
	}

	return router
}
