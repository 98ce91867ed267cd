package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"fleet-rollout/internal/core/rollout"
	"fleet-rollout/internal/dto"
	"fleet-rollout/internal/model"
	"fleet-rollout/pkg/utils"
)

type RolloutHandler struct {
	manager *rollout.Manager
}

func NewRolloutHandler(manager *rollout.Manager) *RolloutHandler {
	return &RolloutHandler{
		manager: manager,
	}
}

// Create 创建发布, 各更新组按优先级生成阶段
// @Summary 创建发布
// @Tags Rollout
// @Accept json
// @Produce json
// @Param body body dto.CreateRolloutRequest true "创建请求"
// @Success 200 {object} utils.Response{data=model.Rollout}
// @Router /api/v1/rollouts [post]
func (h *RolloutHandler) Create(c *gin.Context) {
	var req dto.CreateRolloutRequest
	if !bindJSON(c, &req) {
		return
	}
	req.CreatedBy = operatorOf(c, req.CreatedBy)

	r, err := h.manager.CreateRollout(c.Request.Context(), &req)
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, r)
}

// List 分页查询发布
// @Summary 发布列表
// @Tags Rollout
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param status query []string false "状态, 可多选"
// @Param release_version query string false "版本"
// @Param keyword query string false "名称关键字"
// @Success 200 {object} utils.PageResponse{data=[]model.Rollout}
// @Router /api/v1/rollouts [get]
func (h *RolloutHandler) List(c *gin.Context) {
	var query dto.RolloutListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err)
		return
	}

	param := query.ToParam()
	rollouts, total, err := h.manager.ListRollouts(c.Request.Context(), param)
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.PageSuccess(c, rollouts, total, param.Page, param.PageSize)
}

// Get 发布详情, 进行中阶段附带评估结果
// @Summary 发布详情
// @Tags Rollout
// @Produce json
// @Param id path int64 true "发布ID"
// @Success 200 {object} utils.Response{data=dto.RolloutDetailDTO}
// @Router /api/v1/rollouts/{id} [get]
func (h *RolloutHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id", "发布ID")
	if !ok {
		return
	}

	detail, err := h.manager.EvaluateRollout(c.Request.Context(), id)
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, detail)
}

// Start 启动发布
// @Summary 启动发布
// @Tags Rollout
// @Accept json
// @Produce json
// @Param id path int64 true "发布ID"
// @Param body body dto.OperatorRequest false "操作人"
// @Success 200 {object} utils.Response{data=model.Rollout}
// @Router /api/v1/rollouts/{id}/start [post]
func (h *RolloutHandler) Start(c *gin.Context) {
	h.operate(c, h.manager.StartRollout)
}

// Pause 暂停发布
// @Summary 暂停发布
// @Tags Rollout
// @Accept json
// @Produce json
// @Param id path int64 true "发布ID"
// @Param body body dto.OperatorRequest false "操作人"
// @Success 200 {object} utils.Response{data=model.Rollout}
// @Router /api/v1/rollouts/{id}/pause [post]
func (h *RolloutHandler) Pause(c *gin.Context) {
	h.operate(c, h.manager.PauseRollout)
}

// Resume 恢复发布
// @Summary 恢复发布
// @Tags Rollout
// @Accept json
// @Produce json
// @Param id path int64 true "发布ID"
// @Param body body dto.OperatorRequest false "操作人"
// @Success 200 {object} utils.Response{data=model.Rollout}
// @Router /api/v1/rollouts/{id}/resume [post]
func (h *RolloutHandler) Resume(c *gin.Context) {
	h.operate(c, h.manager.ResumeRollout)
}

type operation func(ctx context.Context, rolloutID int64, operator string) (*model.Rollout, error)

func (h *RolloutHandler) operate(c *gin.Context, op operation) {
	id, ok := pathID(c, "id", "发布ID")
	if !ok {
		return
	}
	var req dto.OperatorRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	r, err := op(c.Request.Context(), id, operatorOf(c, req.Operator))
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, r)
}

// Rollback 人工回滚, 必须给出原因
// @Summary 回滚发布
// @Tags Rollout
// @Accept json
// @Produce json
// @Param id path int64 true "发布ID"
// @Param body body dto.RollbackRequest true "回滚原因"
// @Success 200 {object} utils.Response{data=model.Rollout}
// @Router /api/v1/rollouts/{id}/rollback [post]
func (h *RolloutHandler) Rollback(c *gin.Context) {
	id, ok := pathID(c, "id", "发布ID")
	if !ok {
		return
	}
	var req dto.RollbackRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.manager.RollbackRollout(c.Request.Context(), id, req.Reason, operatorOf(c, req.Operator))
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, r)
}

// Promote 人工晋级阶段
// @Summary 晋级阶段
// @Tags Rollout
// @Accept json
// @Produce json
// @Param id path int64 true "发布ID"
// @Param stage_id path int64 true "阶段ID"
// @Param body body dto.OperatorRequest false "操作人"
// @Success 200 {object} utils.Response{data=model.Rollout}
// @Router /api/v1/rollouts/{id}/stages/{stage_id}/promote [post]
func (h *RolloutHandler) Promote(c *gin.Context) {
	var param dto.StageParam
	if err := c.ShouldBindUri(&param); err != nil {
		badRequest(c, err)
		return
	}
	var req dto.OperatorRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	r, err := h.manager.PromoteStage(c.Request.Context(), param.ID, param.StageID, operatorOf(c, req.Operator))
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, r)
}

// Events 审计事件
// @Summary 发布审计事件
// @Tags Rollout
// @Produce json
// @Param id path int64 true "发布ID"
// @Param limit query int false "返回条数"
// @Success 200 {object} utils.Response{data=[]model.RolloutEvent}
// @Router /api/v1/rollouts/{id}/events [get]
func (h *RolloutHandler) Events(c *gin.Context) {
	id, ok := pathID(c, "id", "发布ID")
	if !ok {
		return
	}
	var query dto.EventListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err)
		return
	}

	events, err := h.manager.ListEvents(c.Request.Context(), id, query.Limit)
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, events)
}

// Devices 发布涉及的设备及其状态
// @Summary 发布设备状态
// @Tags Rollout
// @Produce json
// @Param id path int64 true "发布ID"
// @Param status query []string false "设备状态, 可多选"
// @Success 200 {object} utils.Response{data=[]model.RolloutDevice}
// @Router /api/v1/rollouts/{id}/devices [get]
func (h *RolloutHandler) Devices(c *gin.Context) {
	id, ok := pathID(c, "id", "发布ID")
	if !ok {
		return
	}
	var query dto.RolloutDeviceQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, err)
		return
	}

	devices, err := h.manager.ListRolloutDevices(c.Request.Context(), id, query.Statuses)
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, devices)
}

// Report Agent 上报最终结果, 重复上报不会重复计数
// @Summary 上报设备更新结果
// @Tags Agent
// @Accept json
// @Produce json
// @Param body body dto.DeviceResultReport true "更新结果"
// @Success 200 {object} utils.Response
// @Router /api/v1/rollouts/report [post]
func (h *RolloutHandler) Report(c *gin.Context) {
	var req dto.DeviceResultReport
	if !bindJSON(c, &req) {
		return
	}

	if err := h.manager.HandleDeviceUpdateResult(c.Request.Context(), req.DeviceID, req.RolloutID, *req.Success, req.Error); err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, nil)
}

// Progress Agent 上报中间进度
// @Summary 上报设备更新进度
// @Tags Agent
// @Accept json
// @Produce json
// @Param body body dto.DeviceProgressReport true "更新进度"
// @Success 200 {object} utils.Response
// @Router /api/v1/rollouts/progress [post]
func (h *RolloutHandler) Progress(c *gin.Context) {
	var req dto.DeviceProgressReport
	if !bindJSON(c, &req) {
		return
	}

	if err := h.manager.HandleDeviceProgress(c.Request.Context(), req.DeviceID, req.RolloutID, req.Status); err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, nil)
}
