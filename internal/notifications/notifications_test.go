package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSlackNotifier_SendAlert(t *testing.T) {
	var capturedPayload slackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/services/hooks/incoming-webhook", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		err := json.NewDecoder(r.Body).Decode(&capturedPayload)
		assert.NoError(t, err)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL + "/services/hooks/incoming-webhook")
	err := notifier.SendAlert(context.Background(), "blockchain archive", SeverityCritical, "seal mismatch at block 3")

	assert.NoError(t, err)
	assert.Equal(t, "Portal Alert: blockchain archive", capturedPayload.Text)
	if assert.NotEmpty(t, capturedPayload.Attachments) {
		att := capturedPayload.Attachments[0]
		assert.Equal(t, "#ff0000", att.Color) // critical = red
		assert.Equal(t, "[critical] Alert", att.Title)
		assert.Equal(t, "seal mismatch at block 3", att.Text)
	}
}

func TestSlackNotifier_SendAlert_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.SendAlert(context.Background(), "s", SeverityInfo, "msg")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "slack api returned status: 500")
}

func TestNew_FallsBackToConsole(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	n := New("", zap.New(core))
	assert.IsType(t, &ConsoleNotifier{}, n)

	assert.NoError(t, n.SendAlert(context.Background(), "chain", SeverityWarning, "hello"))
	entries := logs.FilterMessage("alert").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "hello", entries[0].ContextMap()["message"])
	}

	assert.IsType(t, &SlackNotifier{}, New("http://hooks.example", zap.NewNop()))
}
