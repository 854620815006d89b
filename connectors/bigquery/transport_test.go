package bigquery_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	gbq "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/connectors/bigquery"
	"reduction.dev/ckptsink/sink"
)

type savedRow struct {
	values   map[string]gbq.Value
	insertID string
}

type fakeTable struct {
	rows        []savedRow
	metadataErr error
	putErr      error
}

func (f *fakeTable) Metadata(ctx context.Context) (*gbq.TableMetadata, error) {
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	return &gbq.TableMetadata{Name: "events"}, nil
}

func (f *fakeTable) Put(ctx context.Context, rows []gbq.ValueSaver) error {
	if f.putErr != nil {
		return f.putErr
	}
	for _, r := range rows {
		values, insertID, err := r.Save()
		if err != nil {
			return err
		}
		f.rows = append(f.rows, savedRow{values, insertID})
	}
	return nil
}

var subtask = sink.SubtaskIdentity{Index: 0, Parallelism: 1}

func TestTransport_InsertsRowsWithInsertIDs(t *testing.T) {
	ctx := context.Background()
	table := &fakeTable{}
	transport := bigquery.NewTransportWithTable(table)
	require.NoError(t, transport.Open(ctx, subtask))

	batch := &connectors.Batch{Label: "job_0_3", Records: [][]byte{
		[]byte(`{"id": 9007199254740993, "name": "a"}`),
		[]byte(`{"id": 2}`),
	}}
	require.NoError(t, transport.Deliver(ctx, batch))
	require.NoError(t, transport.Close())

	require.Len(t, table.rows, 2)
	assert.Equal(t, "job_0_3-0", table.rows[0].insertID)
	assert.Equal(t, "job_0_3-1", table.rows[1].insertID)
	assert.Equal(t, json.Number("9007199254740993"), table.rows[0].values["id"], "large integers keep precision")
	assert.Equal(t, "a", table.rows[0].values["name"])
}

func TestTransport_RejectsNonObjectRecords(t *testing.T) {
	ctx := context.Background()
	table := &fakeTable{}
	transport := bigquery.NewTransportWithTable(table)
	require.NoError(t, transport.Open(ctx, subtask))

	for _, record := range []string{`[1,2]`, `null`, `nope`} {
		err := transport.Deliver(ctx, &connectors.Batch{Label: "l", Records: [][]byte{[]byte(record)}})
		assert.False(t, connectors.IsRetryable(err), record)
	}
	assert.Empty(t, table.rows)
}

func TestTransport_ClassifiesInsertErrors(t *testing.T) {
	ctx := context.Background()
	batch := &connectors.Batch{Label: "l", Records: [][]byte{[]byte(`{"id":1}`)}}

	rowErrs := gbq.PutMultiError{{InsertID: "l-0", RowIndex: 0, Errors: gbq.MultiError{errors.New("no such field")}}}
	transport := bigquery.NewTransportWithTable(&fakeTable{putErr: rowErrs})
	require.NoError(t, transport.Open(ctx, subtask))
	assert.False(t, connectors.IsRetryable(transport.Deliver(ctx, batch)), "row errors are terminal")

	transport = bigquery.NewTransportWithTable(&fakeTable{putErr: errors.New("503 backend error")})
	require.NoError(t, transport.Open(ctx, subtask))
	assert.True(t, connectors.IsRetryable(transport.Deliver(ctx, batch)))
}

func TestTransport_OpenReadsTableMetadata(t *testing.T) {
	transport := bigquery.NewTransportWithTable(&fakeTable{metadataErr: errors.New("notFound")})
	assert.ErrorContains(t, transport.Open(context.Background(), subtask), "notFound")
}

func TestSinkConfig_Validate(t *testing.T) {
	assert.NoError(t, bigquery.SinkConfig{ProjectID: "p", Dataset: "d", Table: "t"}.Validate())
	err := bigquery.SinkConfig{}.Validate()
	assert.ErrorContains(t, err, "projectID")
	assert.ErrorContains(t, err, "dataset")
	assert.ErrorContains(t, err, "table")
}
