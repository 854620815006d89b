// Package bigquery streams batch records into a BigQuery table. Each record
// must be a JSON object. Rows carry the insert ID <label>-<i>, which BigQuery
// uses for best-effort de-duplication of redelivered batches.
package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gbq "cloud.google.com/go/bigquery"
	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/sink"
)

// Table is the part of a BigQuery table the transport uses.
type Table interface {
	Metadata(ctx context.Context) (*gbq.TableMetadata, error)
	Put(ctx context.Context, rows []gbq.ValueSaver) error
}

type Transport struct {
	config   SinkConfig
	newTable func(ctx context.Context) (Table, func() error, error)
	table    Table
	close    func() error
}

func NewTransport(config SinkConfig) *Transport {
	return &Transport{
		config: config,
		newTable: func(ctx context.Context) (Table, func() error, error) {
			client, err := gbq.NewClient(ctx, config.ProjectID)
			if err != nil {
				return nil, nil, err
			}
			return &clientTable{client.Dataset(config.Dataset).Table(config.Table)}, client.Close, nil
		},
	}
}

// NewTransportWithTable uses an existing table, typically a fake.
func NewTransportWithTable(table Table) *Transport {
	return &Transport{
		newTable: func(ctx context.Context) (Table, func() error, error) {
			return table, func() error { return nil }, nil
		},
	}
}

func (t *Transport) Open(ctx context.Context, identity sink.SubtaskIdentity) error {
	table, closeFn, err := t.newTable(ctx)
	if err != nil {
		return fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	t.table, t.close = table, closeFn

	if _, err := table.Metadata(ctx); err != nil {
		return fmt.Errorf("reading BigQuery table %s.%s metadata: %w", t.config.Dataset, t.config.Table, err)
	}
	return nil
}

func (t *Transport) Deliver(ctx context.Context, batch *connectors.Batch) error {
	if t.table == nil {
		return connectors.NewTerminalError(errors.New("bigquery transport not open"))
	}

	rows := make([]gbq.ValueSaver, len(batch.Records))
	for i, data := range batch.Records {
		r, err := decodeRow(data, fmt.Sprintf("%s-%d", batch.Label, i))
		if err != nil {
			return connectors.NewTerminalError(fmt.Errorf("batch %s record %d: %w", batch.Label, i, err))
		}
		rows[i] = r
	}

	if err := t.table.Put(ctx, rows); err != nil {
		var rowErrs gbq.PutMultiError
		if errors.As(err, &rowErrs) {
			return connectors.NewTerminalError(fmt.Errorf("bigquery rejected %d rows of batch %s: %w", len(rowErrs), batch.Label, err))
		}
		return connectors.NewRetryableError(fmt.Errorf("bigquery insert batch %s: %w", batch.Label, err))
	}
	return nil
}

func (t *Transport) Close() error {
	if t.close == nil {
		return nil
	}
	return t.close()
}

// row is a JSON object record with its insert ID.
type row struct {
	values   map[string]gbq.Value
	insertID string
}

func (r *row) Save() (map[string]gbq.Value, string, error) {
	return r.values, r.insertID, nil
}

func decodeRow(data []byte, insertID string) (*row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var values map[string]gbq.Value
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("record is not a JSON object: %w", err)
	}
	if values == nil {
		return nil, errors.New("record is not a JSON object: null")
	}
	return &row{values: values, insertID: insertID}, nil
}

type clientTable struct {
	table *gbq.Table
}

func (t *clientTable) Metadata(ctx context.Context) (*gbq.TableMetadata, error) {
	return t.table.Metadata(ctx)
}

func (t *clientTable) Put(ctx context.Context, rows []gbq.ValueSaver) error {
	return t.table.Inserter().Put(ctx, rows)
}

var _ connectors.Transport = (*Transport)(nil)
