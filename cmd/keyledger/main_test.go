package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"keyledger/internal/cache"
	"keyledger/internal/config"
	"keyledger/internal/db"
	"keyledger/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig(t *testing.T, port int) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{
			Type: "sqlite",
			DSN:  fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
		},
		Cache:     config.CacheConfig{Type: "memory", TTL: time.Minute},
		Scheduler: config.SchedulerConfig{CacheSweep: "@every 1m", QuotaReport: "@daily"},
		Port:      port,
	}
}

func openStore(t *testing.T, cfg *config.Config) db.Service {
	t.Helper()
	store, err := db.NewService(cfg.Database, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCustomRecovery_Panic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(customRecovery(zap.New(core)))
	router.GET("/", func(c *gin.Context) {
		panic("test panic")
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	entries := logs.FilterMessage("Panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "test panic", entries[0].ContextMap()["error"])
}

func TestCustomRecovery_AbortHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(customRecovery(zap.New(core)))
	router.GET("/", func(c *gin.Context) {
		panic(http.ErrAbortHandler)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, 1, logs.FilterMessage("Client connection aborted").Len())
	assert.Equal(t, 0, logs.FilterMessage("Panic recovered").Len())
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(requestLogger(zap.New(core)))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusTeapot) })
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	entries := logs.FilterMessage("Request handled").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/ping", entries[0].ContextMap()["path"])
	assert.EqualValues(t, http.StatusTeapot, entries[0].ContextMap()["status"])
}

func TestServerRoutesE2E(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t, 0)
	store := openStore(t, cfg)
	srv, err := newServer(context.Background(), cfg, zap.NewNop(), store, cache.NewMemoryCache(0))
	require.NoError(t, err)
	defer srv.close()

	do := func(method, path, body string, headers ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		rr := httptest.NewRecorder()
		srv.router.ServeHTTP(rr, req)
		return rr
	}

	resp := do(http.MethodPost, "/api/api-keys", `{"name":"e2e key","type":"dev","monthlyLimit":5}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var key model.APIKey
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &key))

	resp = do(http.MethodPost, "/api/validate-key", "", "x-api-key", key.Secret)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = do(http.MethodGet, "/api/api-keys?search=e2e", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"usage":1`)

	// An unconfigured summarizer answers before the key is charged.
	resp = do(http.MethodPost, "/api/github-summarizer", `{"githubUrl":"https://github.com/octo/hello"}`, "x-api-key", key.Secret)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	resp = do(http.MethodGet, "/api/api-keys/"+key.ID, "")
	assert.Contains(t, resp.Body.String(), `"usage":1`)

	resp = do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"database"`)

	resp = do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `keyledger_key_operations_total`)
	assert.Contains(t, resp.Body.String(), `keyledger_http_requests_total`)
	assert.Contains(t, resp.Body.String(), `go_goroutines`)
}

func TestHealthReportsClosedStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t, 0)
	store, err := db.NewService(cfg.Database, nil)
	require.NoError(t, err)
	srv, err := newServer(context.Background(), cfg, zap.NewNop(), store, cache.Nop{})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestGracefulShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t, 18089)
	store := openStore(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverExited := make(chan error, 1)
	go func() {
		serverExited <- setupAndRunServer(ctx, cfg, zap.NewNop(), store, cache.NewMemoryCache(0))
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://localhost:18089/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 50*time.Millisecond)

	cancel()

	select {
	case err := <-serverExited:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down gracefully within the timeout")
	}
}

func TestSetupAndRunServer_BadSchedule(t *testing.T) {
	cfg := testConfig(t, 18090)
	cfg.Scheduler.QuotaReport = "whenever"
	store := openStore(t, cfg)

	err := setupAndRunServer(context.Background(), cfg, zap.NewNop(), store, cache.Nop{})
	assert.Error(t, err)
}

func writeConfigFile(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "keys.db")
	configPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("database:\n  type: sqlite\n  dsn: %q\ncache:\n  type: none\n", dbPath)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath, dbPath
}

func TestIssueCommand(t *testing.T) {
	configPath, dbPath := writeConfigFile(t)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"issue", "--config", configPath, "--name", "bootstrap", "--type", "prod", "--limit", "50"})
	require.NoError(t, root.Execute())

	var key model.APIKey
	require.NoError(t, json.Unmarshal(out.Bytes(), &key))
	assert.Equal(t, "bootstrap", key.Name)
	assert.Equal(t, model.KeyTypeProd, key.Type)
	assert.Equal(t, int64(50), key.MonthlyLimit)
	assert.True(t, strings.HasPrefix(key.Secret, "tvly-prod-"))

	store, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: dbPath}, nil)
	require.NoError(t, err)
	defer store.Close()
	stored, err := store.FindByName(context.Background(), "bootstrap")
	require.NoError(t, err)
	assert.Equal(t, key.ID, stored.ID)
}

func TestIssueCommandRejectsInvalidInput(t *testing.T) {
	configPath, _ := writeConfigFile(t)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"issue", "--config", configPath, "--name", "bootstrap", "--type", "staging"})
	assert.Error(t, root.Execute())

	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"issue", "--config", configPath})
	assert.Error(t, root.Execute())
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Version: dev")
	assert.Contains(t, out.String(), "Go Version:")
}
