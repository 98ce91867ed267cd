package handler

import (
	"github.com/gin-gonic/gin"

	"fleet-rollout/internal/dto"
	"fleet-rollout/internal/service"
	"fleet-rollout/pkg/utils"
)

type UpdateGroupHandler struct {
	groupService *service.UpdateGroupService
}

func NewUpdateGroupHandler(groupService *service.UpdateGroupService) *UpdateGroupHandler {
	return &UpdateGroupHandler{
		groupService: groupService,
	}
}

// Create 创建更新组
// @Summary 创建更新组
// @Tags UpdateGroup
// @Accept json
// @Produce json
// @Param body body dto.CreateUpdateGroupRequest true "创建请求"
// @Success 200 {object} utils.Response{data=dto.UpdateGroupDTO}
// @Router /api/v1/update-groups [post]
func (h *UpdateGroupHandler) Create(c *gin.Context) {
	var req dto.CreateUpdateGroupRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.groupService.Create(c.Request.Context(), &req)
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, resp)
}

// Update 更新更新组
// @Summary 更新更新组
// @Tags UpdateGroup
// @Accept json
// @Produce json
// @Param id path int64 true "更新组ID"
// @Param body body dto.UpdateUpdateGroupRequest true "更新请求"
// @Success 200 {object} utils.Response{data=dto.UpdateGroupDTO}
// @Router /api/v1/update-groups/{id} [put]
func (h *UpdateGroupHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id", "更新组ID")
	if !ok {
		return
	}
	var req dto.UpdateUpdateGroupRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.groupService.Update(c.Request.Context(), id, &req)
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, resp)
}

// List 全部更新组(含成员数)
// @Summary 更新组列表
// @Tags UpdateGroup
// @Produce json
// @Success 200 {object} utils.Response{data=[]dto.UpdateGroupDTO}
// @Router /api/v1/update-groups [get]
func (h *UpdateGroupHandler) List(c *gin.Context) {
	groups, err := h.groupService.List(c.Request.Context())
	if err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, groups)
}

// AssignDevice 调整设备所属更新组
// @Summary 调整设备分组
// @Tags UpdateGroup
// @Accept json
// @Produce json
// @Param id path int64 true "设备ID"
// @Param body body dto.AssignDeviceGroupRequest false "目标更新组, 为空表示移出"
// @Success 200 {object} utils.Response
// @Router /api/v1/devices/{id}/group [put]
func (h *UpdateGroupHandler) AssignDevice(c *gin.Context) {
	id, ok := pathID(c, "id", "设备ID")
	if !ok {
		return
	}
	var req dto.AssignDeviceGroupRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	if err := h.groupService.AssignDevice(c.Request.Context(), id, req.GroupID); err != nil {
		utils.Error(c, err)
		return
	}
	utils.Success(c, nil)
}
