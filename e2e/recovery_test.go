package e2e_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reduction.dev/ckptsink/checkpoints"
	"reduction.dev/ckptsink/connectors/httpapi/httpapitest"
	"reduction.dev/ckptsink/sink"
	"reduction.dev/ckptsink/storage/locations"
	"reduction.dev/ckptsink/util/sliceu"
	"reduction.dev/ckptsink/writer"
)

const httpJob = `
job:
  name: recovery
  parallelism: 2
  checkpointLocation: ${CHECKPOINTS}
  checkpointEvery: 4
  maxRestarts: ${MAX_RESTARTS}
writer:
  labelPrefix: e2e
  maxBatchSize: 2
sink:
  type: httpapi
  httpapi:
    addr: ${ADDR}
    topic: events
`

func TestRerunAfterFailedRunDeliversEveryRecord(t *testing.T) {
	t.Parallel()

	server := httpapitest.StartServer()
	defer server.Close()
	input, want := numberedRecords(40)
	checkpointDir := t.TempDir()

	// The store rejects the first batch outright, which is fatal for the
	// subtask that sent it and stops the run.
	server.FailNext(http.StatusBadRequest)
	failing := loadJob(t, httpJob, map[string]string{
		"CHECKPOINTS": checkpointDir, "MAX_RESTARTS": "0", "ADDR": server.URL(),
	})
	err := runJob(failing, input)
	require.Error(t, err)
	assert.True(t, sink.IsFatal(err))

	// A second run resumes every subtask from its last completed checkpoint.
	rerun := loadJob(t, httpJob, map[string]string{
		"CHECKPOINTS": checkpointDir, "MAX_RESTARTS": "0", "ADDR": server.URL(),
	})
	require.NoError(t, runJob(rerun, input))

	assertDeliveredAtLeastOnce(t, want, server.Records("events"))
}

func TestRestartWithinRunDeliversEveryRecord(t *testing.T) {
	t.Parallel()

	server := httpapitest.StartServer()
	defer server.Close()
	input, want := numberedRecords(30)

	server.FailNext(http.StatusForbidden)
	cfg := loadJob(t, httpJob, map[string]string{
		"CHECKPOINTS": t.TempDir(), "MAX_RESTARTS": "2", "ADDR": server.URL(),
	})
	require.NoError(t, runJob(cfg, input))

	assertDeliveredAtLeastOnce(t, want, server.Records("events"))
}

func TestRunWithoutFailuresDeliversEachRecordOnce(t *testing.T) {
	t.Parallel()

	server := httpapitest.StartServer()
	defer server.Close()
	input, want := numberedRecords(25)

	cfg := loadJob(t, httpJob, map[string]string{
		"CHECKPOINTS": t.TempDir(), "MAX_RESTARTS": "0", "ADDR": server.URL(),
	})
	require.NoError(t, runJob(cfg, input))

	got := sliceu.Map(server.Records("events"), func(b []byte) string { return string(b) })
	assert.ElementsMatch(t, want, got)
}

// assertDeliveredAtLeastOnce checks that no record is missing. Records read
// after a subtask's last completed checkpoint may be delivered again by the
// attempt that replays them.
func assertDeliveredAtLeastOnce(t *testing.T, want []string, delivered [][]byte) {
	t.Helper()
	got := sliceu.Map(delivered, func(b []byte) string { return string(b) })
	assert.Subset(t, got, want, "every record delivered")
	assert.Subset(t, want, got, "only input records delivered")
	assert.GreaterOrEqual(t, len(got), len(want))
}

func TestFinalCheckpointsHaveNoPendingRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	server := httpapitest.StartServer()
	defer server.Close()
	input, _ := numberedRecords(9)
	checkpointDir := t.TempDir()

	cfg := loadJob(t, httpJob, map[string]string{
		"CHECKPOINTS": checkpointDir, "MAX_RESTARTS": "0", "ADDR": server.URL(),
	})
	require.NoError(t, runJob(cfg, input))

	store := checkpoints.NewStore(checkpoints.StoreParams{Location: locations.NewLocalDirectory(checkpointDir)})
	for subtask, offset := range []uint64{5, 4} {
		ckpt, err := store.Latest(ctx, subtask)
		require.NoError(t, err)
		require.NotNil(t, ckpt, "subtask %d has a checkpoint", subtask)
		assert.Equal(t, offset, ckpt.SourceOffset)

		state, err := writer.DecodeState(ckpt.WriterState)
		require.NoError(t, err)
		assert.Zero(t, state.PendingRecords())
		assert.Equal(t, "e2e", state.LabelPrefix)
	}
}
