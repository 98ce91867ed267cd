package errors

import (
	"errors"
	"fmt"
)

// 错误码
const (
	CodeSuccess         = 200
	CodeBadRequest      = 400
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeInternalError   = 500
	CodeDatabaseError   = 501
	CodeValidationError = 503

	// 发布编排相关
	CodeConfigurationError     = 4201 // 缺少必要配置(如无任何更新组)
	CodeInvalidStateTransition = 4202 // 当前状态不允许该操作
	CodeDeliveryFailure        = 4203 // 单设备指令下发失败
	CodeSerializationError     = 4204 // 队列消息无法解析
	CodeTimeout                = 4205 // 等待响应超时
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码匹配, 便于 errors.Is(err, ErrNotFound)
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New 创建新错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf 创建带格式化消息的错误
func Newf(code int, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf 提取错误码, 非 AppError 返回 CodeInternalError
func CodeOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

// 预定义错误
var (
	ErrBadRequest      = New(CodeBadRequest, "请求参数错误")
	ErrNotFound        = New(CodeNotFound, "资源不存在")
	ErrConflict        = New(CodeConflict, "资源冲突")
	ErrInternalError   = New(CodeInternalError, "内部服务器错误")
	ErrDatabaseError   = New(CodeDatabaseError, "数据库错误")
	ErrValidationError = New(CodeValidationError, "数据验证失败")

	ErrConfiguration          = New(CodeConfigurationError, "配置错误")
	ErrInvalidStateTransition = New(CodeInvalidStateTransition, "状态不允许该操作")
	ErrDeliveryFailure        = New(CodeDeliveryFailure, "指令下发失败")
	ErrSerialization          = New(CodeSerializationError, "消息解析失败")
	ErrTimeout                = New(CodeTimeout, "等待响应超时")
)

// NotFound 资源不存在
func NotFound(format string, args ...interface{}) *AppError {
	return Newf(CodeNotFound, format, args...)
}

// InvalidTransition 非法状态流转
func InvalidTransition(format string, args ...interface{}) *AppError {
	return Newf(CodeInvalidStateTransition, format, args...)
}
