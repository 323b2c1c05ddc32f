package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/capture/internal/config"
	"github.com/mx-space/capture/internal/database"
	"github.com/mx-space/capture/internal/pkg/nativelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newRouter(t *testing.T, redis Pinger, logDir string) *gin.Engine {
	t.Helper()
	db, err := database.Open(config.DatabaseRuntimeConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "health.db"),
	}, logger.Silent)
	require.NoError(t, err)

	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), db, redis, logDir, func(c *gin.Context) { c.Next() })
	return r
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	w := serve(newRouter(t, pinger{}, t.TempDir()), http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["redis"])

	w = serve(newRouter(t, pinger{err: errors.New("refused")}, t.TempDir()), http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, false, body["redis"])
}

func TestLogViewer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "capture-2024-01-02.log"), []byte("old line\n"), 0o644))
	today := nativelog.TodayFilename(time.Now())
	require.NoError(t, os.WriteFile(filepath.Join(dir, today), []byte("today\n"), 0o644))
	r := newRouter(t, nil, dir)

	w := serve(r, http.MethodGet, "/api/v1/health/log")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "capture-2024-01-02.log")

	w = serve(r, http.MethodGet, "/api/v1/health/log/capture-2024-01-02.log")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "old line\n", w.Body.String())

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/api/v1/health/log/config.yml").Code)

	require.Equal(t, http.StatusNoContent, serve(r, http.MethodDelete, "/api/v1/health/log/capture-2024-01-02.log").Code)
	_, err := os.Stat(filepath.Join(dir, "capture-2024-01-02.log"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.Equal(t, http.StatusNoContent, serve(r, http.MethodDelete, "/api/v1/health/log/"+today).Code)
	data, err := os.ReadFile(filepath.Join(dir, today))
	require.NoError(t, err)
	assert.Empty(t, data)
}
