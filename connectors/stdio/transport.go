// Package stdio writes records to an io.Writer, one per line.
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/sink"
)

// SinkConfig contains configuration for the stdio transport
type SinkConfig struct {
	// Stream is "stdout" (default) or "stderr".
	Stream string `yaml:"stream"`
}

func (c SinkConfig) Validate() error {
	switch c.Stream {
	case "", "stdout", "stderr":
		return nil
	default:
		return fmt.Errorf("stdio stream must be stdout or stderr, got %q", c.Stream)
	}
}

// Output returns the configured stream.
func (c SinkConfig) Output() io.Writer {
	if c.Stream == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

// Transport is shared by subtasks writing to the same stream so lines from
// different batches never interleave.
type Transport struct {
	mu  *sync.Mutex
	out io.Writer
}

func NewTransport(out io.Writer) *Transport {
	return &Transport{mu: &sync.Mutex{}, out: out}
}

func (t *Transport) Open(ctx context.Context, identity sink.SubtaskIdentity) error {
	return nil
}

func (t *Transport) Deliver(ctx context.Context, batch *connectors.Batch) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := bufio.NewWriter(t.out)
	for _, r := range batch.Records {
		if _, err := w.Write(r); err != nil {
			return fmt.Errorf("stdio write batch %s: %w", batch.Label, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("stdio write batch %s: %w", batch.Label, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("stdio write batch %s: %w", batch.Label, err)
	}
	return nil
}

func (t *Transport) Close() error {
	return nil
}

var _ connectors.Transport = (*Transport)(nil)
