package connectors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"reduction.dev/ckptsink/connectors"
)

func TestIsRetryable(t *testing.T) {
	cause := errors.New("boom")

	assert.True(t, connectors.IsRetryable(cause), "unmarked errors are retryable")
	assert.True(t, connectors.IsRetryable(connectors.NewRetryableError(cause)))
	assert.False(t, connectors.IsRetryable(connectors.NewTerminalError(cause)))
	assert.False(t, connectors.IsRetryable(fmt.Errorf("deliver: %w", connectors.NewTerminalError(cause))), "wrapped terminal")
	assert.ErrorIs(t, connectors.NewTerminalError(cause), cause)
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, connectors.ValidateURL("http://fe:8030"))
	assert.Error(t, connectors.ValidateURL("fe:8030"))
	assert.Error(t, connectors.ValidateURL("ftp://fe"))
	assert.Error(t, connectors.ValidateURL("http://"))
}
