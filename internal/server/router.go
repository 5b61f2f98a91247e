package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/editor"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/imaging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalContextKey = "paperless_principal"

var (
	errMissingValidator = errors.New("session validator dependency required")
	errMissingDocuments = errors.New("documents service dependency required")
	errMissingEditor    = errors.New("editor registry dependency required")
)

// PrincipalResolver turns validated claims into a principal. *users.Service implements it.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, claims auth.SessionClaims) (auth.Principal, error)
}

type Dependencies struct {
	Validator      *auth.SessionValidator
	Principals     PrincipalResolver
	Documents      *documents.Service
	Editor         *editor.Registry
	Blobs          imaging.BlobStore
	BlobRoot       string
	ShareOrigin    string
	Realtime       *RealtimeDispatcher
	Metrics        *Metrics
	RateLimit      RateLimitConfig
	AllowedOrigins []string
	Clock          func() time.Time
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Validator == nil {
		return nil, errMissingValidator
	}
	if deps.Documents == nil {
		return nil, errMissingDocuments
	}
	if deps.Editor == nil {
		return nil, errMissingEditor
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	handler := &httpHandler{
		validator:         deps.Validator,
		principals:        deps.Principals,
		documents:         deps.Documents,
		editor:            deps.Editor,
		blobs:             deps.Blobs,
		shareOrigin:       deps.ShareOrigin,
		realtime:          realtime,
		metrics:           deps.Metrics,
		clock:             clock,
		logger:            logger,
		heartbeatInterval: defaultHeartbeatInterval,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(accessLog(logger))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.middleware())
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.Use(corsMiddleware(deps.AllowedOrigins))
	if deps.RateLimit.RPS > 0 {
		handler.limiter = newRateLimiter(deps.RateLimit, clock)
		router.Use(handler.rateLimit())
	}
	router.Use(handler.identify)

	router.GET("/healthz", handler.handleHealth)
	router.GET("/invite/:id", handler.handleInvite)
	router.GET("/invite/:id/render.png", handler.handleInviteRender)
	router.GET("/templates", handler.handleTemplates)
	if strings.TrimSpace(deps.BlobRoot) != "" {
		router.Static("/blobs", deps.BlobRoot)
	}

	protected := router.Group("/")
	protected.Use(requireUser)
	protected.GET("/documents", handler.handleListDocuments)
	protected.POST("/documents", handler.handleCreateDocument)
	protected.GET("/documents/stream", handler.handleDocumentStream)
	protected.GET("/documents/:id", handler.handleGetDocument)
	protected.PUT("/documents/:id", handler.handleUpdateDocument)
	protected.DELETE("/documents/:id", handler.handleDeleteDocument)
	protected.GET("/documents/:id/share", handler.handleShare)
	protected.GET("/documents/:id/render.png", handler.handleRender)
	protected.POST("/images", handler.handleUploadImage)

	protected.POST("/editor/sessions", handler.handleOpenSession)
	protected.GET("/editor/sessions/:id", handler.handleSessionView)
	protected.POST("/editor/sessions/:id/commands", handler.handleSessionCommand)
	protected.POST("/editor/sessions/:id/images", handler.handleSessionImage)
	protected.POST("/editor/sessions/:id/save", handler.handleSessionSave)
	protected.POST("/editor/sessions/:id/cancel", handler.handleSessionCancel)
	protected.DELETE("/editor/sessions/:id", handler.handleCloseSession)

	protected.GET("/admin/documents", handler.handleAdminDocuments)

	return router, nil
}

type httpHandler struct {
	validator         *auth.SessionValidator
	principals        PrincipalResolver
	documents         *documents.Service
	editor            *editor.Registry
	blobs             imaging.BlobStore
	shareOrigin       string
	realtime          *RealtimeDispatcher
	metrics           *Metrics
	limiter           *rateLimiter
	clock             func() time.Time
	logger            *zap.Logger
	heartbeatInterval time.Duration
}

// corsMiddleware grants credentialed access only to configured origins. Without a list any origin
// may call the API, but browsers send no cookies or auth headers cross-origin.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Accept", "Cache-Control", "Last-Event-ID"},
		ExposeHeaders: []string{"Content-Type"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// identify attaches the caller's principal when the request carries a valid session. Requests
// with no or an unusable token continue anonymously; requireUser guards the routes that need a
// user.
func (h *httpHandler) identify(c *gin.Context) {
	token, ok := auth.RequestToken(c.Request, h.validator.CookieName())
	if !ok {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		c.Next()
		return
	}
	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.Next()
		return
	}

	principal := auth.PrincipalFromClaims(claims)
	if h.principals != nil {
		resolved, err := h.principals.ResolvePrincipal(c.Request.Context(), claims)
		if err != nil {
			h.respondError(c, err)
			return
		}
		principal = resolved
	}
	c.Set(principalContextKey, principal)
	c.Next()
}

func requireUser(c *gin.Context) {
	if !principalFrom(c).Authenticated() {
		abortWithReason(c, http.StatusUnauthorized, reasonUnauthenticated)
		return
	}
	c.Next()
}

func principalFrom(c *gin.Context) auth.Principal {
	value, ok := c.Get(principalContextKey)
	if !ok {
		return auth.Principal{}
	}
	principal, _ := value.(auth.Principal)
	return principal
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "editorSessions": h.editor.Len()})
}
