package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleet-rollout/internal/model"
)

func TestLarkNotifierPostsCard(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewLarkNotifier(srv.URL, true, zap.NewNop())
	rollout := &model.Rollout{Name: "agent 2.0", ReleaseVersion: "2.0.0", CreatedBy: "ops"}
	rollout.ID = 7

	require.NoError(t, n.SendRolloutNotification(context.Background(), rollout, NotifyRolloutRolledBack, "failure spike"))

	assert.Equal(t, "interactive", body["msg_type"])
	card := body["card"].(map[string]interface{})
	header := card["header"].(map[string]interface{})
	assert.Equal(t, "orange", header["template"])
}

func TestLarkNotifierDisabled(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	n := NewLarkNotifier(srv.URL, false, zap.NewNop())
	require.NoError(t, n.Send(context.Background(), &NotificationMessage{Title: "x"}))
	assert.False(t, called)
}

func TestLarkNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewLarkNotifier(srv.URL, true, zap.NewNop())
	err := n.Send(context.Background(), &NotificationMessage{Title: "x"})
	require.Error(t, err)
}

func TestNewSelectsProvider(t *testing.T) {
	_, isLog := New("log", "", true, zap.NewNop()).(*LogNotifier)
	assert.True(t, isLog)

	_, isMulti := New("lark", "http://example.invalid", true, zap.NewNop()).(*MultiNotifier)
	assert.True(t, isMulti)
}
