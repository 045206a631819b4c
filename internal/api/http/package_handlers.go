package http

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TrueSelph/jvcli/internal/api/middleware"
	"github.com/TrueSelph/jvcli/internal/domain/catalog"
	"github.com/TrueSelph/jvcli/internal/domain/identity"
	"github.com/TrueSelph/jvcli/internal/domain/namespace"
	"github.com/TrueSelph/jvcli/internal/domain/publish"
	"github.com/TrueSelph/jvcli/internal/shared/errs"
	"github.com/TrueSelph/jvcli/internal/shared/validation"
)

// Publish accepts a multipart upload and commits a new package version.
func (h *Handlers) Publish(c *gin.Context) {
	ident, ok := middleware.Identity(c)
	if !ok {
		h.respondError(c, errs.New(errs.Unauthorized, "token is required"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.metrics.RecordPublish("rejected")
		h.respondError(c, errs.Wrap(errs.InvalidPackage, "artifact file is required", err))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		h.metrics.RecordPublish("error")
		h.respondError(c, errs.Wrap(errs.InvalidPackage, "failed to open artifact file", err))
		return
	}
	defer file.Close()

	visibility := catalog.VisibilityPublic
	if raw := c.PostForm("visibility"); raw != "" {
		visibility, err = catalog.ParseVisibility(raw)
		if err != nil {
			h.metrics.RecordPublish("rejected")
			h.respondError(c, err)
			return
		}
	}

	rec, err := h.publisher.Publish(c.Request.Context(), publish.Request{
		Caller:     ident,
		File:       file,
		Name:       c.PostForm("name"),
		Version:    c.PostForm("version"),
		Namespace:  c.PostForm("namespace"),
		Visibility: visibility,
	})
	if err != nil {
		h.metrics.RecordPublish(publishOutcome(err))
		h.respondError(c, err)
		return
	}

	h.metrics.RecordPublish("ok")
	c.JSON(http.StatusOK, gin.H{"package": packageBody(rec)})
}

// Download serves a package version. With info=true only the metadata is
// returned; otherwise the artifact rides along base64-encoded.
func (h *Handlers) Download(c *gin.Context) {
	caller := optionalCaller(c)
	name := c.Query("name")
	version := c.Query("version")

	if infoOnly(c.Query("info")) {
		rec, err := h.resolver.Resolve(c.Request.Context(), caller, name, version)
		if err != nil {
			h.metrics.RecordDownload(downloadOutcome(err))
			h.respondError(c, err)
			return
		}
		h.metrics.RecordDownload("ok")
		c.JSON(http.StatusOK, gin.H{"package": versionBody(rec)})
		return
	}

	rec, body, err := h.resolver.Fetch(c.Request.Context(), caller, name, version)
	if err != nil {
		h.metrics.RecordDownload(downloadOutcome(err))
		h.respondError(c, err)
		return
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		h.metrics.RecordDownload("error")
		h.logger.Error("failed to stream artifact",
			zap.String("ref", rec.ArtifactRef), zap.Error(err))
		h.respondError(c, errs.Wrap(errs.Unavailable, "failed to read artifact", err))
		return
	}

	h.metrics.RecordDownload("ok")
	c.JSON(http.StatusOK, gin.H{
		"package": versionBody(rec),
		"file":    base64.StdEncoding.EncodeToString(data),
	})
}

// Info returns the metadata of a package version without its artifact.
func (h *Handlers) Info(c *gin.Context) {
	caller := optionalCaller(c)
	rec, err := h.resolver.Resolve(c.Request.Context(), caller, c.Query("name"), c.Query("version"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"package": versionBody(rec)})
}

type searchRequest struct {
	Query  string `json:"q"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// Search lists packages whose qualified name contains the query substring.
func (h *Handlers) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errs.Wrap(errs.InvalidFormat, "invalid search request", err))
		return
	}
	results, err := h.catalog.Search(c.Request.Context(), req.Query, req.Limit, req.Offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"packages": results,
		"count":    len(results),
	})
}

type deprecateRequest struct {
	Name    string `json:"name" binding:"required"`
	Version string `json:"version" binding:"required"`
}

// Deprecate transitions a version to its terminal state. Owner-only.
func (h *Handlers) Deprecate(c *gin.Context) {
	ident, ok := middleware.Identity(c)
	if !ok {
		h.respondError(c, errs.New(errs.Unauthorized, "token is required"))
		return
	}
	var req deprecateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errs.Wrap(errs.InvalidFormat, "invalid deprecate request", err))
		return
	}

	ns, name, err := validation.SplitPackageName(req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if ns == "" {
		ns = ident.Username
	}
	if err := h.namespaces.Authorize(c.Request.Context(), ident, ns, namespace.RoleOwner); err != nil {
		h.respondError(c, err)
		return
	}

	rec, err := h.catalog.Deprecate(c.Request.Context(), ns, name, req.Version)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.metrics.Deprecations.Inc()
	h.logger.Info("deprecated package version",
		zap.String("package", rec.FullName()),
		zap.String("version", rec.Version),
		zap.String("by", ident.Username),
	)
	c.JSON(http.StatusOK, gin.H{"package": packageBody(rec)})
}

// optionalCaller adapts the middleware identity to the resolver's nilable
// caller.
func optionalCaller(c *gin.Context) *identity.Identity {
	ident, ok := middleware.Identity(c)
	if !ok {
		return nil
	}
	return &ident
}

func infoOnly(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// packageBody is the compact package shape returned by mutations.
func packageBody(rec catalog.VersionRecord) gin.H {
	return gin.H{
		"name":       rec.Name,
		"version":    rec.Version,
		"namespace":  rec.Namespace,
		"visibility": rec.Visibility,
	}
}

// versionBody is the full record shape returned by reads.
func versionBody(rec catalog.VersionRecord) gin.H {
	body := gin.H{
		"name":         rec.Name,
		"version":      rec.Version,
		"namespace":    rec.Namespace,
		"visibility":   rec.Visibility,
		"digest":       rec.Digest,
		"size":         rec.Size,
		"manifest":     rec.Manifest,
		"published_by": rec.PublishedBy,
		"created_at":   rec.CreatedAt,
	}
	if rec.DeprecatedAt != nil {
		body["deprecated_at"] = rec.DeprecatedAt
	}
	return body
}

func publishOutcome(err error) string {
	switch errs.CodeOf(err) {
	case errs.Conflict:
		return "conflict"
	case errs.InvalidPackage, errs.InvalidFormat, errs.MetadataMismatch, errs.Forbidden:
		return "rejected"
	default:
		return "error"
	}
}

func downloadOutcome(err error) string {
	switch errs.CodeOf(err) {
	case errs.Gone:
		return "gone"
	case errs.NotFound:
		return "not_found"
	default:
		return "error"
	}
}
