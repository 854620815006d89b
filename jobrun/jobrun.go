// Package jobrun runs a configured job in one process: input records are
// dealt round-robin to subtasks, each with its own adapter, writer and
// transport, while checkpoints go to the configured location.
package jobrun

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"reduction.dev/ckptsink/checkpoints"
	"reduction.dev/ckptsink/clocks"
	"reduction.dev/ckptsink/config"
	"reduction.dev/ckptsink/logging"
	"reduction.dev/ckptsink/sink"
	"reduction.dev/ckptsink/storage/locations"
	"reduction.dev/ckptsink/taskrun"
	"reduction.dev/ckptsink/util/sliceu"
	"reduction.dev/ckptsink/writer"
)

// MaxRecordSize is the longest input line accepted.
const MaxRecordSize = 4 << 20

type RunParams struct {
	Config *config.Config
	// Input holds newline-delimited records.
	Input io.Reader
	// MetricsAddr serves /metrics and /metrics/writer when set.
	MetricsAddr string
	Clock       clocks.Clock
}

// Run processes the input to its end or until ctx is canceled.
func Run(ctx context.Context, params RunParams) error {
	cfg := params.Config
	records, err := ReadRecords(params.Input)
	if err != nil {
		return err
	}

	location, err := locations.New(ctx, cfg.Job.CheckpointLocation)
	if err != nil {
		return fmt.Errorf("checkpoint location: %w", err)
	}
	store := checkpoints.NewStore(checkpoints.StoreParams{
		Location: location,
		Retain:   cfg.Job.RetainCheckpoints,
	})

	parts := sliceu.Partition(records, cfg.Job.Parallelism)
	tasks := make([]*taskrun.Task[[]byte], len(parts))
	for i, part := range parts {
		tasks[i] = taskrun.NewTask(taskrun.Params[[]byte]{
			Subtask: sink.SubtaskIdentity{Index: i, Parallelism: cfg.Job.Parallelism},
			NewWriter: func() (sink.Writer[[]byte], error) {
				transport, err := cfg.NewTransport(ctx)
				if err != nil {
					return nil, err
				}
				return writer.New(cfg.WriterParams(transport)), nil
			},
			Source:             taskrun.NewSliceSource(part),
			Checkpoints:        store,
			CheckpointEvery:    cfg.Job.CheckpointEvery,
			CheckpointInterval: cfg.Job.CheckpointInterval,
			MaxRestarts:        cfg.Job.MaxRestarts,
			Clock:              params.Clock,
		})
	}

	slog.Info("starting job", "name", cfg.Job.Name, "records", len(records), "parallelism", cfg.Job.Parallelism)

	g, gctx := errgroup.WithContext(ctx)
	tasksDone := make(chan struct{})
	if params.MetricsAddr != "" {
		listener, err := net.Listen("tcp", params.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		g.Go(func() error {
			return serveMetrics(gctx, listener, tasksDone)
		})
	}
	g.Go(func() error {
		defer close(tasksDone)
		return taskrun.RunSubtasks(gctx, tasks)
	})
	return g.Wait()
}

// ReadRecords splits newline-delimited input into records. Empty lines are
// skipped.
func ReadRecords(r io.Reader) ([][]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxRecordSize)

	var records [][]byte
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		records = append(records, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return records, nil
}

// MetricsHandler serves Prometheus metrics at /metrics and the writer's
// VictoriaMetrics counters at /metrics/writer.
func MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /metrics/writer", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, false)
	})
	return logging.NewHTTPHandler(mux, slog.With("instanceID", "metrics"))
}

func serveMetrics(ctx context.Context, listener net.Listener, done <-chan struct{}) error {
	server := &http.Server{Handler: MetricsHandler()}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	slog.Info("serving metrics", "addr", listener.Addr().String())

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	case <-done:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
