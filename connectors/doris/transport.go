// Package doris loads batches into an Apache Doris table with stream load.
// The batch label is the load label, so Doris rejects a second load of the
// same batch and a redelivery after an ambiguous failure is applied once.
package doris

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"reduction.dev/ckptsink/connectors"
	"reduction.dev/ckptsink/sink"
	"reduction.dev/ckptsink/util/httpu"
)

// Stream load result statuses.
const (
	StatusSuccess        = "Success"
	StatusPublishTimeout = "Publish Timeout"
	StatusLabelExists    = "Label Already Exists"
	StatusFail           = "Fail"
)

// LoadResponse is the JSON body Doris returns for a stream load.
type LoadResponse struct {
	TxnID             int64  `json:"TxnId"`
	Label             string `json:"Label"`
	Status            string `json:"Status"`
	ExistingJobStatus string `json:"ExistingJobStatus"`
	Message           string `json:"Message"`
	NumberLoadedRows  int64  `json:"NumberLoadedRows"`
	ErrorURL          string `json:"ErrorURL"`
}

type Transport struct {
	config     SinkConfig
	loadURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewTransport(config SinkConfig) *Transport {
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	client := httpu.NewClient("doris", config.Timeout)
	// Frontends redirect stream loads to a backend. The client drops the
	// Authorization header when the redirect changes host.
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		req.SetBasicAuth(config.Username, config.Password)
		return nil
	}

	return &Transport{
		config:     config,
		loadURL:    fmt.Sprintf("%s/api/%s/%s/_stream_load", config.Addr, config.Database, config.Table),
		httpClient: client,
		log:        slog.With("instanceID", "doris"),
	}
}

func (t *Transport) Open(ctx context.Context, identity sink.SubtaskIdentity) error {
	t.log = slog.With("instanceID", "doris-"+identity.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.config.Addr+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("doris frontend unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("doris health check: %d response from %s", resp.StatusCode, t.config.Addr)
	}
	return nil
}

// Deliver stream loads the batch, retrying retryable failures up to
// MaxRetries times with at least RetryBackoff between attempts.
func (t *Transport) Deliver(ctx context.Context, batch *connectors.Batch) error {
	body := bytes.Join(batch.Records, []byte("\n"))
	pace := rate.NewLimiter(rate.Every(t.config.RetryBackoff), 1)

	var lastErr error
	for attempt := 0; attempt <= t.config.MaxRetries; attempt++ {
		if err := pace.Wait(ctx); err != nil {
			return connectors.NewRetryableError(errors.Join(lastErr, err))
		}
		err := t.load(ctx, batch.Label, body)
		if err == nil {
			return nil
		}
		if !connectors.IsRetryable(err) {
			return err
		}
		lastErr = err
		t.log.Warn("stream load failed", "label", batch.Label, "attempt", attempt+1, "err", err)
	}
	return lastErr
}

func (t *Transport) load(ctx context.Context, label string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.loadURL, bytes.NewReader(body))
	if err != nil {
		return connectors.NewTerminalError(err)
	}
	req.SetBasicAuth(t.config.Username, t.config.Password)
	req.Header.Set("Expect", "100-continue")
	req.Header.Set("label", label)
	req.Header.Set("format", "json")
	req.Header.Set("read_json_by_line", "true")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return connectors.NewRetryableError(fmt.Errorf("stream load %s: %w", label, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return connectors.NewRetryableError(fmt.Errorf("stream load %s read response: %w", label, err))
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return connectors.NewTerminalError(fmt.Errorf("stream load %s: %d response: %s", label, resp.StatusCode, data))
	}
	if resp.StatusCode >= 500 {
		return connectors.NewRetryableError(fmt.Errorf("stream load %s: %d response: %s", label, resp.StatusCode, data))
	}
	if resp.StatusCode != http.StatusOK {
		return connectors.NewTerminalError(fmt.Errorf("stream load %s: %d response: %s", label, resp.StatusCode, data))
	}

	var result LoadResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return connectors.NewRetryableError(fmt.Errorf("stream load %s decode response: %w", label, err))
	}
	return checkResult(label, result)
}

func checkResult(label string, result LoadResponse) error {
	switch result.Status {
	case StatusSuccess, StatusPublishTimeout:
		return nil
	case StatusLabelExists:
		if result.ExistingJobStatus == "FINISHED" || result.ExistingJobStatus == "VISIBLE" {
			return nil
		}
		return connectors.NewRetryableError(fmt.Errorf("stream load %s: label exists with job status %q", label, result.ExistingJobStatus))
	case StatusFail:
		return connectors.NewTerminalError(fmt.Errorf("stream load %s failed: %s (%s)", label, result.Message, result.ErrorURL))
	default:
		return connectors.NewRetryableError(fmt.Errorf("stream load %s: status %q: %s", label, result.Status, result.Message))
	}
}

func (t *Transport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}

var _ connectors.Transport = (*Transport)(nil)
