package server_test

import (
	"archive/tar"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrueSelph/jvcli/internal/infrastructure/config"
	"github.com/TrueSelph/jvcli/internal/infrastructure/logging"
	"github.com/TrueSelph/jvcli/internal/infrastructure/server"
)

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Auth.TokenSecret = "test-secret"
	cfg.Database.Path = filepath.Join(dir, "registry.db")
	cfg.Storage.Root = filepath.Join(dir, "artifacts")
	cfg.RateLimit.Enabled = false
	require.NoError(t, cfg.Validate())

	srv, err := server.New(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func doJSON(t *testing.T, srv *server.Server, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func signup(t *testing.T, srv *server.Server, username string) string {
	t.Helper()
	w, body := doJSON(t, srv, http.MethodPost, "/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func buildArtifact(t *testing.T, name, version string) []byte {
	t.Helper()
	manifest := "package:\n  name: " + name + "\n  version: " + version + "\n"

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "info.yaml", Mode: 0o644, Size: int64(len(manifest)), Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write([]byte(manifest))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func publish(t *testing.T, srv *server.Server, token string, fields map[string]string, data []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, mw.WriteField(key, value))
	}
	part, err := mw.CreateFormFile("file", "artifact.tgz")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/publish/package", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

// TestSignupLoginFlow tests account creation and both login identifiers
func TestSignupLoginFlow(t *testing.T) {
	srv := newTestServer(t)
	signup(t, srv, "alice")

	w, body := doJSON(t, srv, http.MethodPost, "/login", "", map[string]string{
		"emailOrUsername": "alice@example.com",
		"password":        "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["token"])

	namespaces, ok := body["namespaces"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", namespaces["default"])

	w, body = doJSON(t, srv, http.MethodPost, "/login", "", map[string]string{
		"emailOrUsername": "alice",
		"password":        "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", body["error"])
}

// TestNamespaceManagement tests creation and membership endpoints
func TestNamespaceManagement(t *testing.T) {
	srv := newTestServer(t)
	aliceToken := signup(t, srv, "alice")
	bobToken := signup(t, srv, "bob")

	w, _ := doJSON(t, srv, http.MethodPost, "/namespace", aliceToken, map[string]string{"name": "team"})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := doJSON(t, srv, http.MethodPost, "/namespace/owner", aliceToken, map[string]string{
		"namespace": "team", "username": "bob", "role": "member",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	members, ok := body["members"].([]any)
	require.True(t, ok)
	assert.Len(t, members, 2)

	// A plain member cannot manage membership.
	w, body = doJSON(t, srv, http.MethodDelete, "/namespace/owner", bobToken, map[string]string{
		"namespace": "team", "username": "alice",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", body["error"])

	// The sole owner cannot be removed.
	w, body = doJSON(t, srv, http.MethodDelete, "/namespace/owner", aliceToken, map[string]string{
		"namespace": "team", "username": "alice",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_OPERATION", body["error"])

	w, body = doJSON(t, srv, http.MethodGet, "/namespaces", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	namespaces, ok := body["namespaces"].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"alice", "team"}, namespaces["groups"])
}

// TestPublishDownloadLifecycle tests the full package lifecycle over HTTP
func TestPublishDownloadLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := signup(t, srv, "alice")
	data := buildArtifact(t, "tool", "1.0.0")

	w, body := publish(t, srv, token, map[string]string{
		"name": "tool", "version": "1.0.0", "namespace": "alice", "visibility": "public",
	}, data)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pkg, ok := body["package"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "tool", pkg["name"])
	assert.Equal(t, "alice", pkg["namespace"])
	assert.Equal(t, "public", pkg["visibility"])

	// Republishing the same version is rejected.
	w, body = publish(t, srv, token, map[string]string{
		"name": "tool", "version": "1.0.0", "namespace": "alice", "visibility": "public",
	}, data)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", body["error"])

	// Anonymous download of the public artifact.
	w, body = doJSON(t, srv, http.MethodGet, "/download/package?name=alice/tool", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	encoded, ok := body["file"].(string)
	require.True(t, ok)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)

	// info=true returns metadata only.
	w, body = doJSON(t, srv, http.MethodGet, "/download/package?name=alice/tool&info=true", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, body, "file")

	w, body = doJSON(t, srv, http.MethodGet, "/info/package?name=alice/tool&version=1.0.0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pkg, ok = body["package"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", pkg["version"])
	assert.NotEmpty(t, pkg["digest"])

	w, body = doJSON(t, srv, http.MethodPost, "/packages/search", "", map[string]any{"q": "tool"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])
}

// TestPublishRequiresAuth tests the bearer token requirement
func TestPublishRequiresAuth(t *testing.T) {
	srv := newTestServer(t)
	data := buildArtifact(t, "tool", "1.0.0")

	w, body := publish(t, srv, "", map[string]string{
		"name": "tool", "version": "1.0.0", "visibility": "public",
	}, data)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", body["error"])
}

// TestDeprecateFlow tests deprecation and the Gone artifact
func TestDeprecateFlow(t *testing.T) {
	srv := newTestServer(t)
	token := signup(t, srv, "alice")
	data := buildArtifact(t, "tool", "1.0.0")
	w, _ := publish(t, srv, token, map[string]string{
		"name": "tool", "version": "1.0.0", "namespace": "alice", "visibility": "public",
	}, data)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := doJSON(t, srv, http.MethodDelete, "/deprecate/package", token, map[string]string{
		"name": "alice/tool", "version": "1.0.0",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pkg, ok := body["package"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "deprecated", pkg["visibility"])

	// Terminal state: a second deprecation fails.
	w, body = doJSON(t, srv, http.MethodDelete, "/deprecate/package", token, map[string]string{
		"name": "alice/tool", "version": "1.0.0",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_OPERATION", body["error"])

	// Metadata remains readable; the artifact is gone.
	w, _ = doJSON(t, srv, http.MethodGet, "/info/package?name=alice/tool&version=1.0.0", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = doJSON(t, srv, http.MethodGet, "/download/package?name=alice/tool&version=1.0.0", "", nil)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "GONE", body["error"])
}

// TestDeprecateRequiresOwner tests the owner-only guard
func TestDeprecateRequiresOwner(t *testing.T) {
	srv := newTestServer(t)
	aliceToken := signup(t, srv, "alice")
	bobToken := signup(t, srv, "bob")

	data := buildArtifact(t, "tool", "1.0.0")
	w, _ := publish(t, srv, aliceToken, map[string]string{
		"name": "tool", "version": "1.0.0", "namespace": "alice", "visibility": "public",
	}, data)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := doJSON(t, srv, http.MethodDelete, "/deprecate/package", bobToken, map[string]string{
		"name": "alice/tool", "version": "1.0.0",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", body["error"])
}

// TestPrivateVisibility tests that private versions hide from outsiders
func TestPrivateVisibility(t *testing.T) {
	srv := newTestServer(t)
	aliceToken := signup(t, srv, "alice")
	bobToken := signup(t, srv, "bob")

	data := buildArtifact(t, "secret_tool", "1.0.0")
	w, _ := publish(t, srv, aliceToken, map[string]string{
		"name": "secret_tool", "version": "1.0.0", "namespace": "alice", "visibility": "private",
	}, data)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Anonymous and non-member callers see NotFound, not Forbidden.
	w, body := doJSON(t, srv, http.MethodGet, "/download/package?name=alice/secret_tool", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["error"])

	w, _ = doJSON(t, srv, http.MethodGet, "/download/package?name=alice/secret_tool", bobToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The owner downloads fine.
	w, _ = doJSON(t, srv, http.MethodGet, "/download/package?name=alice/secret_tool", aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestInvalidBearerToken tests that a presented-but-bad token is rejected
// even on optional-auth routes
func TestInvalidBearerToken(t *testing.T) {
	srv := newTestServer(t)
	w, body := doJSON(t, srv, http.MethodGet, "/download/package?name=alice/tool", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", body["error"])
}

// TestSystemEndpoints tests the root, health, and metrics surfaces
func TestSystemEndpoints(t *testing.T) {
	srv := newTestServer(t)

	w, body := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	w, _ = doJSON(t, srv, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "registry_uptime_seconds")
}
