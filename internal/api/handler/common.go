package handler

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"

	pkgErrors "fleet-rollout/pkg/errors"
	"fleet-rollout/pkg/utils"
)

// HeaderOperator 请求体未携带 operator 时的操作人来源
const HeaderOperator = "X-Operator"

const defaultOperator = "api"

func badRequest(c *gin.Context, err error) {
	utils.ErrorWithDetail(c, pkgErrors.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
}

// bindJSON 绑定失败时已写响应, 返回 false
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

// bindOptionalJSON 允许空请求体
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return false
	}
	return true
}

func pathID(c *gin.Context, name, label string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		utils.ErrorWithDetail(c, pkgErrors.CodeBadRequest, "无效的"+label, c.Param(name))
		return 0, false
	}
	return id, true
}

func operatorOf(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if h := c.GetHeader(HeaderOperator); h != "" {
		return h
	}
	return defaultOperator
}
