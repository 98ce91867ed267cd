package dto

import (
	"encoding/json"

	"github.com/samber/lo"
)

func PageLimit(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func PageSizeLimit(pageSize int) int {
	if pageSize < 1 {
		return 20
	}

	if pageSize > 100 {
		return 100
	}
	return pageSize
}

// NormalizeKeys 将 camelCase 键统一转为 snake_case, 已是 snake_case 的键保持不变
// 同一字段两种写法同时出现时以 snake_case 为准
func NormalizeKeys(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		key := lo.SnakeCase(k)
		if _, exists := out[key]; exists && key != k {
			continue
		}
		out[key] = v
	}
	return out
}

// unmarshalNormalized 先归一化键名再解码到 v
func unmarshalNormalized(data []byte, v interface{}) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	normalized, err := json.Marshal(NormalizeKeys(raw))
	if err != nil {
		return err
	}
	return json.Unmarshal(normalized, v)
}
