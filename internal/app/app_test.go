package app

import (
	"bytes"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finverse/finverse/internal/entitystore"
	"github.com/finverse/finverse/internal/features"
	"github.com/finverse/finverse/internal/observability"
	"github.com/finverse/finverse/internal/statement"
	"github.com/finverse/finverse/internal/statement/export"
	statementhttp "github.com/finverse/finverse/internal/statement/http"
	"github.com/finverse/finverse/jobs"
)

func TestLoadConfigDefaultsAndDotenv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("ENTITY_STORE=memory\nCACHE_TTL=2m\nPLATFORM_INCEPTION=2022-06-01\n"), 0o600))
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("APP_ADDR", ":9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, key := range []string{"ENTITY_STORE", "CACHE_TTL", "PLATFORM_INCEPTION"} {
			_ = os.Unsetenv(key)
		}
	})

	assert.Equal(t, ":9090", cfg.AppAddr)
	assert.Equal(t, StoreMemory, cfg.EntityStore)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 5*time.Second, cfg.StatementFetchTimeout)
	inception, err := cfg.Inception()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, time.June, 1, 0, 0, 0, 0, time.UTC), inception)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	t.Setenv("ENTITY_STORE", "mongo")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("ENTITY_STORE", "memory")
	t.Setenv("PLATFORM_INCEPTION", "01/01/2023")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	assert.Equal(t, slog.LevelDebug, parseLevel(&Config{LogLevel: "DEBUG"}))
	assert.Equal(t, slog.LevelInfo, parseLevel(nil))
}

func TestExportMimeTypesRegistered(t *testing.T) {
	assert.NotEmpty(t, mime.TypeByExtension(".xlsx"))
	assert.NotEmpty(t, mime.TypeByExtension(".csv"))
}

func TestRouterMountsModules(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := entitystore.NewMemory()
	statements := statement.NewService(store, nil, logger, statement.Config{})
	html, err := export.NewHTMLExporter()
	require.NoError(t, err)
	registry, err := features.DefaultRegistry()
	require.NoError(t, err)

	router := NewRouter(RouterParams{
		Logger:           logger,
		Config:           &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second},
		Metrics:          observability.NewMetrics(),
		StatementHandler: statementhttp.NewHandler(logger, statements, html, nil, time.Second),
		FeatureHandler:   features.NewHandler(logger, features.NewService(registry, store, nil, logger)),
		JobHandler:       jobs.NewHandler(nil, logger),
	})

	for path, want := range map[string]int{
		"/healthz":          http.StatusOK,
		"/finance/periods":  http.StatusOK,
		"/admin/features":   http.StatusOK,
		"/jobs/health":      http.StatusOK,
		"/metrics":          http.StatusOK,
		"/finance/payouts/": http.StatusNotFound,
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rr.Code, path)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())
	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
