// Package httpapi posts batches as JSON lists to an HTTP endpoint. The batch
// label is sent as the Idempotency-Key header.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/sink"
	"reduction.dev/ckptsink/util/httpu"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type Transport struct {
	addr       string
	topic      string
	httpClient *http.Client
}

// NewTransport creates a transport that writes records to the configured host
// address.
func NewTransport(config SinkConfig) *Transport {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Transport{
		addr:       config.Addr,
		topic:      config.Topic,
		httpClient: httpu.NewClient("httpapi", timeout),
	}
}

func (t *Transport) Open(ctx context.Context, identity sink.SubtaskIdentity) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.addr+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpapi endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("httpapi health check: %d response from %s", resp.StatusCode, t.addr)
	}
	return nil
}

// Deliver sends the batch's records as one request. The records list is
// encoded as a JSON array of base64 strings.
func (t *Transport) Deliver(ctx context.Context, batch *connectors.Batch) error {
	eventList, err := json.Marshal(batch.Records)
	if err != nil {
		return connectors.NewTerminalError(fmt.Errorf("httpapi.Deliver failed eventList Marshal: %w", err))
	}

	url := t.addr + "/topics/" + t.topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(eventList))
	if err != nil {
		return connectors.NewTerminalError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyKeyHeader, batch.Label)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return connectors.NewRetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("failed http request: %d response from %s, %s", resp.StatusCode, url, msg)
		if retryableStatus(resp.StatusCode) {
			return connectors.NewRetryableError(err)
		}
		return connectors.NewTerminalError(err)
	}
	return nil
}

func (t *Transport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

var _ connectors.Transport = (*Transport)(nil)
