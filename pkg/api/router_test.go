package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/concess/internal/logger"
	"github.com/marmos91/concess/pkg/directory"
)

type response struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
	Error  string         `json:"error"`
}

func newTestStore(t *testing.T) (*directory.Store, string) {
	t.Helper()
	root := t.TempDir()
	users := directory.UsersPath(root)
	require.NoError(t, os.MkdirAll(users, 0o755))
	writeUser(t, root, "alice", "password: \"{CLEARTEXT}wonderland\"\ngroups: [admins, users]\n")
	writeUser(t, root, "bob", "password: \"{CLEARTEXT}builder\"\ngroups: [users]\n")

	s, err := directory.NewStore(root)
	require.NoError(t, err)
	return s, root
}

func writeUser(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(directory.UsersPath(root), name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func do(t *testing.T, h http.Handler, method, path string, header map[string]string) (int, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp response
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	}
	return w.Code, resp
}

func TestHealth(t *testing.T) {
	store, _ := newTestStore(t)
	h := NewRouter(APIConfig{}, store, store)

	code, resp := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "concess", resp.Data["service"])

	code, resp = do(t, h, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, resp.Data["users"])
	assert.EqualValues(t, 2, resp.Data["groups"])
}

func TestReadinessWithoutDirectory(t *testing.T) {
	h := NewRouter(APIConfig{}, nil, nil)

	code, resp := do(t, h, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)

	code, _ = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestDirectoryInfo(t *testing.T) {
	store, root := newTestStore(t)
	h := NewRouter(APIConfig{}, store, store)

	code, resp := do(t, h, http.MethodGet, "/api/v1/directory", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, root, resp.Data["path"])
	assert.EqualValues(t, 2, resp.Data["users"])
	assert.NotEmpty(t, resp.Data["digest"])
}

func TestReload(t *testing.T) {
	store, root := newTestStore(t)
	h := NewRouter(APIConfig{}, store, store)

	writeUser(t, root, "carol", "password: \"{CLEARTEXT}x\"\ngroups: [ops]\n")

	code, resp := do(t, h, http.MethodPost, "/api/v1/reload", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, resp.Data["users"])
	assert.EqualValues(t, 3, resp.Data["groups"])

	t.Run("FailureKeepsSnapshot", func(t *testing.T) {
		writeUser(t, root, "broken", "password: [not, a, string\n")

		code, resp := do(t, h, http.MethodPost, "/api/v1/reload", nil)
		assert.Equal(t, http.StatusInternalServerError, code)
		assert.Equal(t, "error", resp.Status)
		assert.NotEmpty(t, resp.Error)

		assert.Equal(t, 3, store.Snapshot().UserCount())
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		code, _ := do(t, h, http.MethodGet, "/api/v1/reload", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, code)
	})
}

func TestReloadUnavailable(t *testing.T) {
	store, _ := newTestStore(t)
	h := NewRouter(APIConfig{}, store, nil)

	code, _ := do(t, h, http.MethodPost, "/api/v1/reload", nil)
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestToken(t *testing.T) {
	store, _ := newTestStore(t)
	h := NewRouter(APIConfig{Token: "s3cret"}, store, store)

	code, _ := do(t, h, http.MethodGet, "/api/v1/directory", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, h, http.MethodGet, "/api/v1/directory", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, code)

	// Health probes stay open.
	code, _ = do(t, h, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRootRedirect(t *testing.T) {
	h := NewRouter(APIConfig{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/health", w.Header().Get("Location"))
}

func TestAPIConfigDefaults(t *testing.T) {
	var c APIConfig
	assert.True(t, c.IsEnabled())

	c.ApplyDefaults()
	assert.Equal(t, DefaultPort, c.Port)
	assert.NotZero(t, c.ReadTimeout)
	assert.NotZero(t, c.WriteTimeout)
	assert.NotZero(t, c.IdleTimeout)

	disabled := false
	c.Enabled = &disabled
	assert.False(t, c.IsEnabled())
}

func TestAPIConfigUnprotected(t *testing.T) {
	tests := []struct {
		name    string
		bind    string
		token   string
		exposed bool
	}{
		{"AllInterfacesWithoutToken", "", "", true},
		{"WildcardWithoutToken", "0.0.0.0", "", true},
		{"PublicAddressWithoutToken", "192.0.2.10", "", true},
		{"LoopbackWithoutToken", "127.0.0.1", "", false},
		{"IPv6LoopbackWithoutToken", "::1", "", false},
		{"AllInterfacesWithToken", "", "s3cret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := APIConfig{BindAddress: tt.bind, Token: tt.token}
			assert.Equal(t, tt.exposed, c.Unprotected())
		})
	}
}

func TestWarnIfUnprotected(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "INFO", "text", false)
	t.Cleanup(func() { logger.InitWithWriter(os.Stderr, "INFO", "text", false) })

	warnIfUnprotected(APIConfig{BindAddress: "127.0.0.1"}, "127.0.0.1:8080")
	assert.Empty(t, buf.String())

	warnIfUnprotected(APIConfig{BindAddress: "0.0.0.0"}, "0.0.0.0:8080")
	assert.Contains(t, buf.String(), "no token")
	assert.Contains(t, buf.String(), "0.0.0.0:8080")

	buf.Reset()
	warnIfUnprotected(APIConfig{BindAddress: "0.0.0.0", Token: "s3cret"}, "0.0.0.0:8080")
	assert.Empty(t, buf.String())
}
