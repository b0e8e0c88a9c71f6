package server

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mankindli/sub-gateway/internal/accesslog"
	"github.com/mankindli/sub-gateway/internal/auth"
	"github.com/mankindli/sub-gateway/internal/customers"
	"github.com/mankindli/sub-gateway/internal/subscription"
	"go.uber.org/zap"
)

const (
	requestIDHeader     = "X-Request-ID"
	requestIDContextKey = "subgateway_request_id"
	adminContextKey     = "subgateway_admin"

	basicChallenge = `Basic realm="sub-gateway"`
)

var (
	errMissingCustomers     = errors.New("customers service dependency required")
	errMissingSubscriptions = errors.New("subscription gateway dependency required")
	errMissingSessions      = errors.New("session issuer dependency required")
)

// Dependencies wires the HTTP layer to the engine. AccessLog is optional;
// when nil, public requests are only zap-logged.
type Dependencies struct {
	Customers     *customers.Service
	Subscriptions *subscription.Gateway
	Sessions      *auth.SessionIssuer
	Credentials   auth.Credentials
	AccessLog     *accesslog.Recorder
	BaseURL       string
	Logger        *zap.Logger
}

// NewHTTPHandler builds the gin router serving both the authenticated admin
// API and the unauthenticated subscription endpoints.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Customers == nil {
		return nil, errMissingCustomers
	}
	if deps.Subscriptions == nil {
		return nil, errMissingSubscriptions
	}
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		customers:     deps.Customers,
		subscriptions: deps.Subscriptions,
		sessions:      deps.Sessions,
		credentials:   deps.Credentials,
		accessLog:     deps.AccessLog,
		baseURL:       strings.TrimRight(deps.BaseURL, "/"),
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/s/:token/:format", handler.handleSubscription)

	router.POST("/admin/session", handler.handleSession)

	admin := router.Group("/admin")
	admin.Use(handler.authorizeAdmin)
	admin.POST("/customers", handler.handleCreateCustomer)
	admin.GET("/customers", handler.handleListCustomers)
	admin.GET("/customers/:token", handler.handleGetCustomer)
	admin.PATCH("/customers/:token", handler.handleUpdateCustomer)
	admin.DELETE("/customers/:token", handler.handleDeleteCustomer)
	admin.POST("/customers/:token/rotate", handler.handleRotateToken)
	admin.POST("/customers/:token/override", handler.handleSetOverride)
	admin.DELETE("/customers/:token/override", handler.handleClearOverride)
	admin.POST("/customers/:token/enable", handler.handleEnableCustomer)
	admin.POST("/customers/:token/disable", handler.handleDisableCustomer)
	admin.PUT("/override", handler.handleSetDefaultOverride)
	admin.DELETE("/override", handler.handleClearDefaultOverride)

	return router, nil
}

type httpHandler struct {
	customers     *customers.Service
	subscriptions *subscription.Gateway
	sessions      *auth.SessionIssuer
	credentials   auth.Credentials
	accessLog     *accesslog.Recorder
	baseURL       string
	logger        *zap.Logger
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDContextKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type sessionResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// handleSession exchanges Basic credentials for a short-lived bearer token so
// the admin client does not replay the password on every call. Basic only:
// a session token cannot mint further sessions.
func (h *httpHandler) handleSession(c *gin.Context) {
	username, ok := h.verifyBasic(c.GetHeader("Authorization"))
	if !ok {
		h.unauthorized(c)
		return
	}

	token, expiresIn, err := h.sessions.Issue(username)
	if err != nil {
		h.logger.Error("session issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, sessionResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

// authorizeAdmin accepts either the fixed Basic credentials or a bearer
// session token previously issued from them.
func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	header := c.GetHeader("Authorization")
	switch {
	case strings.HasPrefix(header, "Basic "):
		username, ok := h.verifyBasic(header)
		if !ok {
			h.unauthorized(c)
			c.Abort()
			return
		}
		c.Set(adminContextKey, username)
	case strings.HasPrefix(header, "Bearer "):
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		subject, err := h.sessions.Validate(token)
		if err != nil {
			h.logger.Warn("session validation failed", zap.Error(err))
			h.unauthorized(c)
			c.Abort()
			return
		}
		c.Set(adminContextKey, subject)
	default:
		h.unauthorized(c)
		c.Abort()
		return
	}
	c.Next()
}

func (h *httpHandler) verifyBasic(header string) (string, bool) {
	if !strings.HasPrefix(header, "Basic ") {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
	if err != nil {
		return "", false
	}
	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", false
	}
	if !h.credentials.Verify(username, password) {
		return "", false
	}
	return username, true
}

func (h *httpHandler) unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", basicChallenge)
	c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
}
