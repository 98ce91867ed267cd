package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "fleet-rollout/docs"
	"fleet-rollout/internal/adapter/agent"
	"fleet-rollout/internal/core/rollout"
	"fleet-rollout/internal/metrics"
	"fleet-rollout/internal/model"
	"fleet-rollout/internal/pkg/config"
	"fleet-rollout/internal/pkg/testutil"
	"fleet-rollout/internal/queue"
	"fleet-rollout/internal/repository"
	"fleet-rollout/internal/service"
	"fleet-rollout/pkg/constants"
	pkgErrors "fleet-rollout/pkg/errors"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
	Total   int64           `json:"total"`
}

type apiEnv struct {
	t       *testing.T
	engine  *gin.Engine
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	devices *repository.DeviceRepository
	queued  *repository.QueuedCommandRepository
	ctx     context.Context
}

func newAPIEnv(t *testing.T) *apiEnv {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	db := testutil.NewDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	m := metrics.New()
	channel, err := queue.NewCommandChannel(ctx, rdb, zap.NewNop(), m, queue.Options{ServerID: "server-a"})
	require.NoError(t, err)
	t.Cleanup(channel.Close)

	devices := repository.NewDeviceRepository(db)
	queued := repository.NewQueuedCommandRepository(db)
	conn := agent.NewConnection(rdb, channel, devices, queued, zap.NewNop())
	manager := rollout.NewManager(repository.NewRolloutRepository(db), conn, nil, m, zap.NewNop(), rollout.Options{})

	engine := Setup(&config.ServerConfig{Mode: "debug"}, Dependencies{
		Manager:    manager,
		Groups:     service.NewUpdateGroupService(db, zap.NewNop()),
		Channel:    channel,
		Connection: conn,
		Metrics:    m,
		ServerID:   "server-a",
	}, zap.NewNop())

	return &apiEnv{t: t, engine: engine, mr: mr, rdb: rdb, devices: devices, queued: queued, ctx: ctx}
}

func (e *apiEnv) do(method, path string, body interface{}) *envelope {
	e.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Operator", "alice")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	require.Equal(e.t, http.StatusOK, w.Code)
	assert.NotEmpty(e.t, w.Header().Get("X-Request-ID"))

	var resp envelope
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func (e *apiEnv) ok(method, path string, body interface{}, out interface{}) {
	e.t.Helper()
	resp := e.do(method, path, body)
	require.Equal(e.t, pkgErrors.CodeSuccess, resp.Code, "%s %s: %s %s", method, path, resp.Message, resp.Detail)
	if out != nil {
		require.NoError(e.t, json.Unmarshal(resp.Data, out))
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	e := newAPIEnv(t)

	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	e.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SwaggerCoversAPI(t *testing.T) {
	e := newAPIEnv(t)

	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))

	// 每个 API 路由都需要出现在文档中
	pathParam := regexp.MustCompile(`:(\w+)`)
	for _, route := range e.engine.Routes() {
		if !strings.HasPrefix(route.Path, "/api/") {
			continue
		}
		path := pathParam.ReplaceAllString(route.Path, "{$1}")
		methods, ok := doc.Paths[path]
		if assert.True(t, ok, "文档缺少 %s", path) {
			assert.Contains(t, methods, strings.ToLower(route.Method), "文档缺少 %s %s", route.Method, path)
		}
	}
}

func TestRouter_RolloutLifecycle(t *testing.T) {
	e := newAPIEnv(t)

	var group model.UpdateGroup
	e.ok(http.MethodPost, "/api/v1/update-groups", `{"name":"pilot","priority":0,"successThresholdPercent":100,"failureThresholdPercent":50}`, &group)
	assert.False(t, group.AutoPromote)

	device := &model.Device{AgentID: "agent-1", AgentVersion: "1.0.0"}
	require.NoError(t, e.devices.Create(e.ctx, device))
	e.ok(http.MethodPut, fmt.Sprintf("/api/v1/devices/%d/group", device.ID), map[string]interface{}{"groupId": group.ID}, nil)
	require.NoError(t, e.mr.Set(agent.LocationKeyPrefix+"agent-1", `{"serverId":"server-a"}`))

	var groups []struct {
		Name        string `json:"name"`
		DeviceCount int64  `json:"device_count"`
	}
	e.ok(http.MethodGet, "/api/v1/update-groups", nil, &groups)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(1), groups[0].DeviceCount)

	var created model.Rollout
	e.ok(http.MethodPost, "/api/v1/rollouts", map[string]string{
		"name":           "agent 2.0",
		"releaseVersion": "2.0.0",
		"downloadUrl":    "https://cdn.example.com/agent-2.0.0.tar.gz",
	}, &created)
	assert.Equal(t, constants.RolloutStatusPending, created.Status)
	assert.Equal(t, "alice", created.CreatedBy)

	var started model.Rollout
	e.ok(http.MethodPost, fmt.Sprintf("/api/v1/rollouts/%d/start", created.ID), nil, &started)
	assert.Equal(t, constants.RolloutStatusInProgress, started.Status)

	// 在线设备直接写入指令流
	entries, err := e.rdb.XRange(e.ctx, queue.CommandStreamKey, "-", "+").Result()
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	e.ok(http.MethodPost, "/api/v1/rollouts/progress", map[string]interface{}{
		"deviceId": device.ID, "rolloutId": created.ID, "status": "installing",
	}, nil)
	e.ok(http.MethodPost, "/api/v1/rollouts/report", map[string]interface{}{
		"deviceId": device.ID, "rolloutId": created.ID, "success": true,
	}, nil)

	var detail struct {
		Status string `json:"status"`
		Stages []struct {
			ID               int64 `json:"id"`
			CompletedDevices int   `json:"completed_devices"`
			Evaluation       *struct {
				CanAutoPromote bool   `json:"can_auto_promote"`
				Reason         string `json:"reason"`
			} `json:"evaluation"`
		} `json:"stages"`
	}
	e.ok(http.MethodGet, fmt.Sprintf("/api/v1/rollouts/%d", created.ID), nil, &detail)
	require.Len(t, detail.Stages, 1)
	assert.Equal(t, 1, detail.Stages[0].CompletedDevices)
	require.NotNil(t, detail.Stages[0].Evaluation)
	assert.Equal(t, "等待人工晋级", detail.Stages[0].Evaluation.Reason)

	var promoted model.Rollout
	e.ok(http.MethodPost, fmt.Sprintf("/api/v1/rollouts/%d/stages/%d/promote", created.ID, detail.Stages[0].ID), nil, &promoted)
	assert.Equal(t, constants.RolloutStatusCompleted, promoted.Status)

	var devices []model.RolloutDevice
	e.ok(http.MethodGet, fmt.Sprintf("/api/v1/rollouts/%d/devices?status=completed", created.ID), nil, &devices)
	assert.Len(t, devices, 1)

	var events []model.RolloutEvent
	e.ok(http.MethodGet, fmt.Sprintf("/api/v1/rollouts/%d/events?limit=50", created.ID), nil, &events)
	assert.NotEmpty(t, events)

	list := e.do(http.MethodGet, "/api/v1/rollouts?status=completed", nil)
	assert.Equal(t, pkgErrors.CodeSuccess, list.Code)
	assert.Equal(t, int64(1), list.Total)

	// 终态不可再操作
	resp := e.do(http.MethodPost, fmt.Sprintf("/api/v1/rollouts/%d/pause", created.ID), nil)
	assert.Equal(t, pkgErrors.CodeInvalidStateTransition, resp.Code)
}

func TestRouter_Validation(t *testing.T) {
	e := newAPIEnv(t)

	resp := e.do(http.MethodPost, "/api/v1/rollouts", map[string]string{
		"name": "bad", "releaseVersion": "latest", "downloadUrl": "https://cdn.example.com/a",
	})
	assert.Equal(t, pkgErrors.CodeBadRequest, resp.Code)
	assert.Contains(t, resp.Detail, "release_version")

	resp = e.do(http.MethodPost, "/api/v1/rollouts/1/rollback", `{"operator":"bob"}`)
	assert.Equal(t, pkgErrors.CodeBadRequest, resp.Code)
	assert.Contains(t, resp.Detail, "reason")

	resp = e.do(http.MethodPost, "/api/v1/rollouts/abc/start", nil)
	assert.Equal(t, pkgErrors.CodeBadRequest, resp.Code)

	resp = e.do(http.MethodGet, "/api/v1/rollouts/404", nil)
	assert.Equal(t, pkgErrors.CodeNotFound, resp.Code)

	resp = e.do(http.MethodPost, "/api/v1/rollouts", `{"name":`)
	assert.Equal(t, pkgErrors.CodeBadRequest, resp.Code)
}

func TestRouter_Commands(t *testing.T) {
	e := newAPIEnv(t)

	var published struct {
		Command queue.CommandMessage `json:"command"`
	}
	e.ok(http.MethodPost, "/api/v1/commands", map[string]interface{}{
		"agentId": "agent-1", "commandType": "shell", "payload": `{"cmd":"uptime"}`,
	}, &published)
	assert.NotEmpty(t, published.Command.RequestID)
	assert.Equal(t, queue.OperatorID("alice"), published.Command.CreatedBy)

	// deviceId 为设备 UUID, 原样写入指令通道
	device := &model.Device{AgentID: "agent-2"}
	require.NoError(t, e.devices.Create(e.ctx, device))
	var targeted struct {
		Command queue.CommandMessage `json:"command"`
	}
	e.ok(http.MethodPost, "/api/v1/commands", map[string]interface{}{
		"deviceId": device.UUID.String(), "agentId": "agent-2", "commandType": "shell",
	}, &targeted)
	assert.Equal(t, device.UUID, targeted.Command.DeviceID)

	resp := e.do(http.MethodPost, "/api/v1/commands", `{"deviceId":"42","agentId":"agent-2","commandType":"shell"}`)
	assert.Equal(t, pkgErrors.CodeBadRequest, resp.Code)

	e.ok(http.MethodPost, "/api/v1/commands/responses", map[string]interface{}{
		"commandId": published.Command.ID, "requestId": published.Command.RequestID,
		"agentId": "agent-1", "success": true, "output": "up 3 days",
	}, nil)

	var stats queue.Stats
	e.ok(http.MethodGet, "/api/v1/commands/stats", nil, &stats)
	assert.Equal(t, int64(2), stats.CommandStreamLength)
	assert.Equal(t, int64(1), stats.ResponseStreamLength)
	assert.Equal(t, "server-a", stats.ServerID)
}

func TestRouter_AgentConnectedDrainsQueue(t *testing.T) {
	e := newAPIEnv(t)

	device := &model.Device{AgentID: "agent-7"}
	require.NoError(t, e.devices.Create(e.ctx, device))
	require.NoError(t, e.queued.Create(e.ctx, &model.QueuedCommand{
		DeviceID: device.ID, AgentID: "agent-7", CommandType: constants.CommandTypeUpdateAgent,
		Payload: []byte(`{"version":"2.0.0"}`), Priority: constants.PriorityNormal,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}))

	var result struct {
		Delivered int `json:"delivered"`
	}
	e.ok(http.MethodPost, fmt.Sprintf("/api/v1/agents/%d/connected", device.ID), nil, &result)
	assert.Equal(t, 1, result.Delivered)
	assert.True(t, e.mr.Exists(agent.LocationKeyPrefix+"agent-7"))

	resp := e.do(http.MethodPost, "/api/v1/agents/999/connected", `{"serverId":"server-b"}`)
	assert.Equal(t, pkgErrors.CodeNotFound, resp.Code)
}
