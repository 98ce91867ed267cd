package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

type releaseForm struct {
	Version  string `json:"release_version" binding:"required,version"`
	Checksum string `json:"checksum" binding:"omitempty,hexadecimal"`
}

func TestVersionTag(t *testing.T) {
	v := NewValidator()

	for _, ok := range []string{"1.2.3", "v2.0.0", "1.0.0-rc.1", "3.1.4+build.7"} {
		assert.NoError(t, v.Struct(releaseForm{Version: ok}), ok)
	}
	for _, bad := range []string{"1.2", "latest", "v1.2.x", ""} {
		assert.Error(t, v.Struct(releaseForm{Version: bad}), bad)
	}
}

func TestFormatValidationError(t *testing.T) {
	v := NewValidator()

	err := v.Struct(releaseForm{Version: "next", Checksum: "zz"})
	msg := FormatValidationError(err)
	assert.Contains(t, msg, "field 'release_version' must be a version like 1.2.3")
	assert.Contains(t, msg, "field 'checksum' must be hexadecimal")

	var target struct {
		Count int `json:"count"`
	}
	err = json.Unmarshal([]byte(`{"count":"x"}`), &target)
	assert.Equal(t, "field 'count' should be int", FormatValidationError(err))
	assert.Equal(t, "invalid JSON format", FormatValidationError(json.Unmarshal([]byte(`{`), &target)))
	assert.Empty(t, FormatValidationError(nil))
}
