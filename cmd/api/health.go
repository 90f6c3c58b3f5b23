package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/config"
	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/ledger"
)

type depStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status  string               `json:"status"`
	Version string               `json:"version"`
	Deps    map[string]depStatus `json:"deps"`
}

type dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// healthHandler reports the data directory, the live chain and, when
// configured, redis reachability. Any failing dependency degrades to 503.
func healthHandler(cfg *config.Config, chain *ledger.Chain, d dialer) echo.HandlerFunc {
	return func(c echo.Context) error {
		deps := make(map[string]depStatus)
		overall := "ok"
		fail := func(name, msg string) {
			deps[name] = depStatus{Status: "error", Error: msg}
			overall = "degraded"
		}

		if fi, err := os.Stat(cfg.Data.Dir); err != nil {
			fail("data", err.Error())
		} else if !fi.IsDir() {
			fail("data", "not a directory")
		} else {
			deps["data"] = depStatus{Status: "ok"}
		}

		if v := chain.Validate(); !v.Valid {
			fail("chain", v.Error)
		} else {
			deps["chain"] = depStatus{Status: "ok"}
		}

		if cfg.Redis.Addr != "" {
			pingCtx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			conn, err := d.DialContext(pingCtx, "tcp", cfg.Redis.Addr)
			if err != nil {
				fail("redis", err.Error())
			} else {
				conn.Close()
				deps["redis"] = depStatus{Status: "ok"}
			}
		}

		status := http.StatusOK
		if overall != "ok" {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, healthResponse{
			Status:  overall,
			Version: cfg.App.Version,
			Deps:    deps,
		})
	}
}
