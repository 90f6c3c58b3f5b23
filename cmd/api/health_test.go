package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/config"
	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/ledger"
)

type stubDialer struct{ err error }

func (s stubDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	if s.err != nil {
		return nil, s.err
	}
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

func checkHealth(t *testing.T, cfg *config.Config, d dialer) (int, healthResponse) {
	t.Helper()
	e := echo.New()
	e.GET("/health", healthHandler(cfg, ledger.New(), d))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthCheck(t *testing.T) {
	cfg := &config.Config{
		App:   config.AppConfig{Version: "1.2.3"},
		Data:  config.DataConfig{Dir: t.TempDir()},
		Redis: config.RedisConfig{Addr: "redis:6379"},
	}

	code, body := checkHealth(t, cfg, stubDialer{})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "ok", body.Deps["redis"].Status)
	assert.Equal(t, "ok", body.Deps["chain"].Status)
}

func TestHealthCheck_Degraded(t *testing.T) {
	cfg := &config.Config{
		Data:  config.DataConfig{Dir: filepath.Join(t.TempDir(), "missing")},
		Redis: config.RedisConfig{Addr: "redis:6379"},
	}

	code, body := checkHealth(t, cfg, stubDialer{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "error", body.Deps["data"].Status)
	assert.Equal(t, "connection refused", body.Deps["redis"].Error)
}

func TestHealthCheck_RedisOptional(t *testing.T) {
	cfg := &config.Config{Data: config.DataConfig{Dir: t.TempDir()}}

	code, body := checkHealth(t, cfg, stubDialer{err: errors.New("unused")})
	assert.Equal(t, http.StatusOK, code)
	_, ok := body.Deps["redis"]
	assert.False(t, ok)
}
