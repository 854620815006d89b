// Package httpapitest runs an HTTP endpoint that accepts batches the way the
// httpapi transport sends them.
package httpapitest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"

	"reduction.dev/ckptsink/logging"
)

type Store struct {
	topics       map[string]*Topic
	labels       map[string]struct{}
	failNext     []int
	topicsMutext sync.Mutex
}

type Topic struct {
	Records [][]byte
}

// write applies a batch unless its label was already applied. It returns
// false for a duplicate.
func (s *Store) write(topic, label string, records [][]byte) bool {
	s.topicsMutext.Lock()
	defer s.topicsMutext.Unlock()

	if label != "" {
		if _, ok := s.labels[label]; ok {
			return false
		}
		s.labels[label] = struct{}{}
	}

	t, ok := s.topics[topic]
	if !ok {
		t = &Topic{Records: make([][]byte, 0)}
		s.topics[topic] = t
	}
	t.Records = append(t.Records, records...)
	return true
}

func (s *Store) nextFailure() int {
	s.topicsMutext.Lock()
	defer s.topicsMutext.Unlock()
	if len(s.failNext) == 0 {
		return 0
	}
	code := s.failNext[0]
	s.failNext = s.failNext[1:]
	return code
}

type SinkServer struct {
	httpServer *httptest.Server
	sink       *Store
}

func (s *SinkServer) Close() {
	s.httpServer.Close()
}

func (s *SinkServer) URL() string {
	return s.httpServer.URL
}

// Records returns the records applied to a topic.
func (s *SinkServer) Records(topic string) [][]byte {
	s.sink.topicsMutext.Lock()
	defer s.sink.topicsMutext.Unlock()
	t, ok := s.sink.topics[topic]
	if !ok {
		return nil
	}
	return append([][]byte(nil), t.Records...)
}

func (s *SinkServer) RecordCount(topic string) int {
	return len(s.Records(topic))
}

// FailNext makes the next batch requests respond with the given status codes.
func (s *SinkServer) FailNext(codes ...int) {
	s.sink.topicsMutext.Lock()
	defer s.sink.topicsMutext.Unlock()
	s.sink.failNext = append(s.sink.failNext, codes...)
}

func StartServer() *SinkServer {
	sink := &Store{
		topics: make(map[string]*Topic),
		labels: make(map[string]struct{}),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST /topics/{topicID}", func(w http.ResponseWriter, r *http.Request) {
		topicID := r.PathValue("topicID")
		if topicID == "" {
			http.Error(w, "missing topicID in request", http.StatusBadRequest)
			return
		}
		if code := sink.nextFailure(); code != 0 {
			http.Error(w, http.StatusText(code), code)
			return
		}
		v, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		var eventList [][]byte
		if err := json.Unmarshal(v, &eventList); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !sink.write(topicID, r.Header.Get("Idempotency-Key"), eventList) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	logger := slog.With("instanceID", "httpapi")
	handler := logging.NewHTTPHandler(mux, logger)

	httpServer := httptest.NewServer(handler)
	logger.Info("start", "addr", httpServer.URL)
	return &SinkServer{
		httpServer: httpServer,
		sink:       sink,
	}
}
