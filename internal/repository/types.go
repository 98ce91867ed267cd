package repository

import (
	"errors"

	"gorm.io/gorm"

	pkgErrors "fleet-rollout/pkg/errors"
)

// notFound 将 gorm.ErrRecordNotFound 转为 NotFound 错误码
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgErrors.NotFound(format, args...)
	}
	return err
}

// mergeStatus 状态与附带字段合并为一次更新
func mergeStatus(to string, fields map[string]interface{}) map[string]interface{} {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	return updates
}
