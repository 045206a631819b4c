// Package http contains the registry's HTTP handlers.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TrueSelph/jvcli/internal/api/middleware"
	"github.com/TrueSelph/jvcli/internal/domain/auth"
	"github.com/TrueSelph/jvcli/internal/domain/catalog"
	"github.com/TrueSelph/jvcli/internal/domain/namespace"
	"github.com/TrueSelph/jvcli/internal/domain/publish"
	"github.com/TrueSelph/jvcli/internal/domain/resolve"
	"github.com/TrueSelph/jvcli/internal/infrastructure/logging"
	"github.com/TrueSelph/jvcli/internal/infrastructure/monitoring"
	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	auth       *auth.Service
	namespaces *namespace.Registry
	catalog    *catalog.Catalog
	publisher  *publish.Pipeline
	resolver   *resolve.Service
	metrics    *monitoring.Metrics
	logger     *logging.Logger
}

// NewHandlers creates a handler set.
func NewHandlers(
	authService *auth.Service,
	namespaces *namespace.Registry,
	cat *catalog.Catalog,
	publisher *publish.Pipeline,
	resolver *resolve.Service,
	metrics *monitoring.Metrics,
	logger *logging.Logger,
) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		auth:       authService,
		namespaces: namespaces,
		catalog:    cat,
		publisher:  publisher,
		resolver:   resolver,
		metrics:    metrics,
		logger:     logger,
	}
}

// Root describes the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "jvcli-registry",
		"endpoints": gin.H{
			"auth":       []string{"/signup", "/login"},
			"namespaces": []string{"/namespace", "/namespaces", "/namespace/owner"},
			"packages":   []string{"/publish/package", "/download/package", "/info/package", "/packages/search", "/deprecate/package"},
			"system":     []string{"/health", "/metrics"},
		},
	})
}

// Health handles the health check.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "jvcli-registry",
	})
}

type signupRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Signup registers a user and returns a token plus namespace snapshot.
func (h *Handlers) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errs.Wrap(errs.InvalidFormat, "invalid signup request", err))
		return
	}
	session, err := h.auth.Signup(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      session.Token,
		"email":      session.Email,
		"namespaces": session.Namespaces,
	})
}

type loginRequest struct {
	EmailOrUsername string `json:"emailOrUsername" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

// Login verifies credentials and returns a fresh token plus snapshot.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errs.Wrap(errs.InvalidFormat, "invalid login request", err))
		return
	}
	session, err := h.auth.Login(c.Request.Context(), req.EmailOrUsername, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      session.Token,
		"email":      session.Email,
		"namespaces": session.Namespaces,
	})
}

type createNamespaceRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateNamespace creates a namespace owned by the caller.
func (h *Handlers) CreateNamespace(c *gin.Context) {
	ident, ok := middleware.Identity(c)
	if !ok {
		h.respondError(c, errs.New(errs.Unauthorized, "token is required"))
		return
	}
	var req createNamespaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errs.Wrap(errs.InvalidFormat, "invalid namespace request", err))
		return
	}
	if _, err := h.namespaces.Create(c.Request.Context(), ident, req.Name); err != nil {
		h.respondError(c, err)
		return
	}
	snapshot, err := h.auth.Snapshot(c.Request.Context(), ident)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"namespaces": snapshot})
}

// Namespaces returns the caller's membership snapshot.
func (h *Handlers) Namespaces(c *gin.Context) {
	ident, ok := middleware.Identity(c)
	if !ok {
		h.respondError(c, errs.New(errs.Unauthorized, "token is required"))
		return
	}
	snapshot, err := h.auth.Snapshot(c.Request.Context(), ident)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"namespaces": snapshot})
}

type memberRequest struct {
	Namespace string `json:"namespace" binding:"required"`
	Username  string `json:"username" binding:"required"`
	Role      string `json:"role"`
}

// AddMember grants or overwrites a membership role. Owner-only.
func (h *Handlers) AddMember(c *gin.Context) {
	ident, ok := middleware.Identity(c)
	if !ok {
		h.respondError(c, errs.New(errs.Unauthorized, "token is required"))
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errs.Wrap(errs.InvalidFormat, "invalid member request", err))
		return
	}
	role := namespace.RoleMember
	if req.Role != "" {
		var err error
		role, err = namespace.ParseRole(req.Role)
		if err != nil {
			h.respondError(c, err)
			return
		}
	}
	members, err := h.namespaces.AddMember(c.Request.Context(), ident, req.Namespace, req.Username, role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"namespace": req.Namespace,
		"members":   membersBody(members),
	})
}

// RemoveMember revokes a membership. Owner-only; removing the last owner
// is rejected.
func (h *Handlers) RemoveMember(c *gin.Context) {
	ident, ok := middleware.Identity(c)
	if !ok {
		h.respondError(c, errs.New(errs.Unauthorized, "token is required"))
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errs.Wrap(errs.InvalidFormat, "invalid member request", err))
		return
	}
	members, err := h.namespaces.RemoveMember(c.Request.Context(), ident, req.Namespace, req.Username)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"namespace": req.Namespace,
		"members":   membersBody(members),
	})
}

// respondError maps a coded error to its HTTP response. Uncoded errors are
// logged and surfaced as a plain 500.
func (h *Handlers) respondError(c *gin.Context, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if code == "" {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "INTERNAL",
			"message": "internal error",
		})
		return
	}
	c.JSON(status, gin.H{
		"error":   string(code),
		"message": errs.MessageOf(err),
	})
}

func membersBody(members []namespace.Membership) []gin.H {
	body := make([]gin.H, 0, len(members))
	for _, m := range members {
		body = append(body, gin.H{
			"username": m.Username,
			"role":     m.Role.String(),
		})
	}
	return body
}
