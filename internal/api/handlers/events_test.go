package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/api/handlers"
)

func TestStreamEvents(t *testing.T) {
	hub := handlers.NewHub(zap.NewNop())
	env := newEnv(t, func(d *handlers.Deps) { d.Hub = hub })
	srv := httptest.NewServer(env.e)
	defer srv.Close()

	dev := env.login(t, "developer1", "pass101")
	faculty := env.login(t, "faculty1", "pass456")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/chain/events?token=" + dev
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	rec := env.submit(t, faculty, reportFields(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var ev handlers.BlockEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "block_appended", ev.Type)
	assert.Equal(t, 1, ev.Block.Index)
	assert.True(t, ev.Block.Data.IsReport())

	conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamEvents_RequiresDeveloper(t *testing.T) {
	env := newEnv(t)
	srv := httptest.NewServer(env.e)
	defer srv.Close()

	faculty := env.login(t, "faculty1", "pass456")
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/chain/events?token=" + faculty
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
