package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fleet-rollout/internal/adapter/agent"
	"fleet-rollout/internal/dto"
	"fleet-rollout/internal/queue"
	"fleet-rollout/pkg/utils"
)

type CommandHandler struct {
	channel  *queue.CommandChannel
	conn     *agent.Connection
	serverID string // 回调未指明副本时视为连接在本副本
}

func NewCommandHandler(channel *queue.CommandChannel, conn *agent.Connection, serverID string) *CommandHandler {
	return &CommandHandler{
		channel:  channel,
		conn:     conn,
		serverID: serverID,
	}
}

// Publish 直接下发指令; wait_seconds > 0 时同步等待 Agent 响应
// @Summary 下发指令
// @Tags Command
// @Accept json
// @Produce json
// @Param body body dto.PublishCommandRequest true "指令"
// @Success 200 {object} utils.Response
// @Router /api/v1/commands [post]
func (h *CommandHandler) Publish(c *gin.Context) {
	var req dto.PublishCommandRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &queue.CommandMessage{
		AgentID:     req.AgentID,
		CommandType: req.CommandType,
		Payload:     req.Payload,
		CreatedBy:   queue.OperatorID(operatorOf(c, req.CreatedBy)),
		Timeout:     req.Timeout,
	}
	if req.DeviceID != "" {
		deviceID, err := uuid.Parse(req.DeviceID)
		if err != nil {
			badRequest(c, err)
			return
		}
		cmd.DeviceID = deviceID
	}

	if req.WaitSeconds <= 0 {
		if err := h.channel.PublishCommand(c.Request.Context(), cmd); err != nil {
			utils.Error(c, err)
			return
		}
		utils.Success(c, gin.H{"command": cmd})
		return
	}

	resp, err := h.channel.PublishAndWait(c.Request.Context(), cmd, time.Duration(req.WaitSeconds)*time.Second)
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, gin.H{"command": cmd, "response": resp})
}

// Respond Agent 回写执行结果
// @Summary 回写指令结果
// @Tags Agent
// @Accept json
// @Produce json
// @Param body body dto.PublishResponseRequest true "执行结果"
// @Success 200 {object} utils.Response{data=queue.ResponseMessage}
// @Router /api/v1/commands/responses [post]
func (h *CommandHandler) Respond(c *gin.Context) {
	var req dto.PublishResponseRequest
	if !bindJSON(c, &req) {
		return
	}

	resp := &queue.ResponseMessage{
		CommandID: req.CommandID,
		RequestID: req.RequestID,
		AgentID:   req.AgentID,
		Success:   req.Success,
		Output:    req.Output,
		Error:     req.Error,
		ExitCode:  req.ExitCode,
	}
	if err := h.channel.PublishResponse(c.Request.Context(), resp); err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, resp)
}

// Stats 指令通道统计
// @Summary 指令通道统计
// @Tags Command
// @Produce json
// @Success 200 {object} utils.Response{data=queue.Stats}
// @Router /api/v1/commands/stats [get]
func (h *CommandHandler) Stats(c *gin.Context) {
	stats, err := h.channel.Stats(c.Request.Context())
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, stats)
}

// Connected Agent 上线回调: 记录在线位置并补发暂存指令
// @Summary Agent 上线回调
// @Tags Agent
// @Accept json
// @Produce json
// @Param device_id path int64 true "设备ID"
// @Param body body dto.AgentConnectedRequest false "所在副本"
// @Success 200 {object} utils.Response
// @Router /api/v1/agents/{device_id}/connected [post]
func (h *CommandHandler) Connected(c *gin.Context) {
	var param dto.DeviceParam
	if err := c.ShouldBindUri(&param); err != nil {
		badRequest(c, err)
		return
	}
	var req dto.AgentConnectedRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	serverID := req.ServerID
	if serverID == "" {
		serverID = h.serverID
	}
	delivered, err := h.conn.Connected(c.Request.Context(), param.DeviceID, serverID)
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, gin.H{"delivered": delivered})
}
