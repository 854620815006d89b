package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"reduction.dev/ckptsink/config"
)

func TestParamsSetGet(t *testing.T) {
	params := config.NewParams()

	params.Set("key1", "value1")
	value, exists := params.Get("key1")
	assert.True(t, exists, "Get should return true for existing key")
	assert.Equal(t, "value1", value)

	value, exists = params.Get("nonexistent")
	assert.False(t, exists, "Get should return false for non-existent key")
	assert.Equal(t, "", value)

	params.Set("key1", "newvalue")
	value, _ = params.Get("key1")
	assert.Equal(t, "newvalue", value, "Get should return the updated value")
}

func TestParamsEnvironmentFallback(t *testing.T) {
	params := config.NewParams()
	t.Setenv("CKPTSINK_PARAM_testkey", "testvalue")

	value, exists := params.Get("testkey")
	assert.True(t, exists, "Get should return true for key with env var")
	assert.Equal(t, "testvalue", value)

	params.Set("testkey", "mapvalue")
	value, _ = params.Get("testkey")
	assert.Equal(t, "mapvalue", value, "Value from params map should take precedence over env var")
}
