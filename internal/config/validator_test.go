package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddr(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateAddr("127.0.0.1:8765"))
	assert.NoError(t, v.ValidateAddr(":0"))
	assert.Error(t, v.ValidateAddr(""))
	assert.Error(t, v.ValidateAddr("localhost"))
	assert.Error(t, v.ValidateAddr("localhost:http"))
	assert.Error(t, v.ValidateAddr("localhost:70000"))
}

func TestValidateSchedule(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateSchedule("@every 30s"))
	assert.NoError(t, v.ValidateSchedule("*/5 * * * *"))
	assert.NoError(t, v.ValidateSchedule("@hourly"))
	assert.Error(t, v.ValidateSchedule(""))
	assert.Error(t, v.ValidateSchedule("sometimes"))
}

func TestValidateDisplay(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateDisplay(DisplayConfig{Width: 20, Fill: "#", Empty: "-"}))
	assert.NoError(t, v.ValidateDisplay(DisplayConfig{Width: 1, Fill: "█", Empty: "░"}))
	assert.Error(t, v.ValidateDisplay(DisplayConfig{Width: 201, Fill: "#", Empty: "-"}))
	assert.Error(t, v.ValidateDisplay(DisplayConfig{Width: 20, Fill: "", Empty: "-"}))
	assert.Error(t, v.ValidateDisplay(DisplayConfig{Width: 20, Fill: "#", Empty: "--"}))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"", "debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level), level)
	}
	assert.Error(t, v.ValidateLogLevel("trace"))
}

func TestValidateRetention(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateRetention(""))
	assert.NoError(t, v.ValidateRetention("720h"))
	assert.Error(t, v.ValidateRetention("a month"))
	assert.Error(t, v.ValidateRetention("-1h"))
	assert.Error(t, v.ValidateRetention("0s"))
}
