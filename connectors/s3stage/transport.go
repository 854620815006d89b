// Package s3stage delivers batches as newline-delimited files in a storage
// location. A batch is first written under staging/ and then copied to
// committed/<label>.ndjson, so readers of committed/ never see partial files
// and a label that is already committed is skipped.
package s3stage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/sink"
	"reduction.dev/ckptsink/storage/locations"
)

// SinkConfig contains configuration for the staged file transport
type SinkConfig struct {
	// Path is an s3:// URI or a local directory.
	Path string `yaml:"path"`
}

func (c SinkConfig) Validate() error {
	if c.Path == "" {
		return errors.New("s3stage path is required")
	}
	return nil
}

type Transport struct {
	location locations.StorageLocation
	identity sink.SubtaskIdentity
	log      *slog.Logger
}

func NewTransport(location locations.StorageLocation) *Transport {
	return &Transport{
		location: location,
		log:      slog.With("instanceID", "s3stage"),
	}
}

// CommittedPath is the location path of a delivered batch.
func CommittedPath(label string) string {
	return "committed/" + label + ".ndjson"
}

func (t *Transport) stagingPath(label string) string {
	return fmt.Sprintf("staging/%d/%s.ndjson", t.identity.Index, label)
}

func (t *Transport) Open(ctx context.Context, identity sink.SubtaskIdentity) error {
	t.identity = identity
	t.log = slog.With("instanceID", "s3stage-"+identity.String())

	for _, err := range t.location.List(ctx, "committed/") {
		if err != nil {
			return fmt.Errorf("s3stage location unavailable: %w", err)
		}
		break
	}
	return nil
}

func (t *Transport) Deliver(ctx context.Context, batch *connectors.Batch) error {
	committed := CommittedPath(batch.Label)
	_, err := t.location.URI(ctx, committed)
	if err == nil {
		t.log.Info("batch already committed", "label", batch.Label)
		return nil
	}
	if !errors.Is(err, locations.ErrNotFound) {
		return fmt.Errorf("checking %s: %w", committed, err)
	}

	var body bytes.Buffer
	for _, r := range batch.Records {
		body.Write(r)
		body.WriteByte('\n')
	}

	staged := t.stagingPath(batch.Label)
	uri, err := t.location.Write(ctx, staged, &body)
	if err != nil {
		return fmt.Errorf("staging batch %s: %w", batch.Label, err)
	}
	if err := t.location.Copy(ctx, uri, committed); err != nil {
		return fmt.Errorf("committing batch %s: %w", batch.Label, err)
	}
	if err := t.location.Remove(ctx, uri); err != nil {
		t.log.Warn("failed to remove staged file", "uri", uri, "err", err)
	}
	return nil
}

func (t *Transport) Close() error {
	return nil
}

var _ connectors.Transport = (*Transport)(nil)
