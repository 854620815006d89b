package sink_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"reduction.dev/ckptsink/sink"
)

func TestIsFatal(t *testing.T) {
	cause := errors.New("cause")

	assert.False(t, sink.IsFatal(nil))
	assert.False(t, sink.IsFatal(sink.NewFlushError(cause, false)))
	assert.False(t, sink.IsFatal(fmt.Errorf("checkpoint 3: %w", sink.NewFlushError(cause, false))), "wrapped flush error")
	assert.True(t, sink.IsFatal(sink.NewFlushError(cause, true)))
	assert.True(t, sink.IsFatal(sink.NewWriteError(cause)))
	assert.True(t, sink.IsFatal(sink.NewRestoreError(cause)))
	assert.True(t, sink.IsFatal(sink.NewInitializationError(cause)))
	assert.True(t, sink.IsFatal(&sink.PhaseError{Op: "Invoke", Phase: sink.PhaseClosed}))
	assert.True(t, sink.IsFatal(cause), "unclassified errors are fatal")
}

func TestErrorsUnwrapToCause(t *testing.T) {
	cause := errors.New("cause")

	for _, err := range []error{
		sink.NewInitializationError(cause),
		sink.NewRestoreError(cause),
		sink.NewWriteError(cause),
		sink.NewFlushError(cause, true),
	} {
		assert.ErrorIs(t, err, cause, "%T should unwrap to its cause", err)
	}
}

func TestSubtaskIdentity_Validate(t *testing.T) {
	assert.NoError(t, sink.SubtaskIdentity{Index: 0, Parallelism: 1}.Validate())
	assert.NoError(t, sink.SubtaskIdentity{Index: 3, Parallelism: 4}.Validate())
	assert.Error(t, sink.SubtaskIdentity{Index: 0, Parallelism: 0}.Validate())
	assert.Error(t, sink.SubtaskIdentity{Index: -1, Parallelism: 2}.Validate())
	assert.Error(t, sink.SubtaskIdentity{Index: 2, Parallelism: 2}.Validate())
	assert.Equal(t, "1/4", sink.SubtaskIdentity{Index: 1, Parallelism: 4}.String())
}
