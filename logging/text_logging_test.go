package logging

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	h := NewTextHandlerWriter(buf)
	h.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return slog.New(h)
}

func TestTextHandler_InstanceIDAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf).With("instanceID", "writer-0/2", "prefix", "job")

	log.Info("batch delivered", "label", "job_0_1", "records", 3, "msg", "has space")

	assert.Equal(t,
		`2024/05/01 12:00:00 INFO [writer-0/2] batch delivered prefix=job label=job_0_1 records=3 msg="has space"`+"\n",
		buf.String())
}

func TestTextHandler_DerivedLoggersDoNotShareAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(&buf).With("instanceID", "task-0")
	a := base.With("attempt", "a")
	b := base.With("attempt", "b")

	a.Info("one")
	b.Info("two")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "[task-0] one attempt=a"))
	assert.True(t, strings.HasSuffix(lines[1], "[task-0] two attempt=b"))
}

func TestTextHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf).With("instanceID", "doris").WithGroup("load").With("table", "events")

	log.Info("stream load", "label", "job_0_1", slog.Group("result", "status", "Success", "rows", 2))

	assert.Equal(t,
		`2024/05/01 12:00:00 INFO [doris] stream load load.table=events load.label=job_0_1 load.result.status=Success load.result.rows=2`+"\n",
		buf.String())
}

func TestTextHandler_QuotesAmbiguousValues(t *testing.T) {
	var buf bytes.Buffer
	newTestLogger(&buf).Info("values", "empty", "", "eq", "a=b", "tab", "a\tb", "path", `C:\dir`)

	assert.Contains(t, buf.String(), `empty="" eq="a=b" tab="a\tb" path=C:\dir`)
}

func TestTextHandler_RespectsGlobalLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf)

	SetLevel(slog.LevelWarn)
	defer SetLevel(slog.LevelInfo)

	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WARN [root] shown")
}

func TestHTTPHandler_LogsRequests(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf).With("instanceID", "metrics")
	handler := NewHTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), log)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, buf.String(), "[metrics] request method=GET path=/metrics status=204")
}

func TestHTTPHandler_LogsBodiesAtDebug(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf).With("instanceID", "fake")
	var received string
	handler := NewHTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = string(body)
	}), log)

	SetLevel(slog.LevelDebug)
	defer SetLevel(slog.LevelInfo)

	body := strings.Repeat("x", maxLoggedBody+10)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/topics/t", strings.NewReader(body)))

	assert.Equal(t, body, received, "handler still sees the full body")
	assert.Contains(t, buf.String(), "request body path=/topics/t bytes=522 body="+strings.Repeat("x", maxLoggedBody)+"\n")
	assert.Contains(t, buf.String(), "status=200")
}

func TestSetLevelText(t *testing.T) {
	defer SetLevel(slog.LevelInfo)

	require.NoError(t, SetLevelText("debug"))
	assert.Equal(t, slog.LevelDebug, globalLevel.Level())
	assert.Error(t, SetLevelText("loud"))

	t.Setenv(LevelEnv, "error")
	require.NoError(t, SetLevelFromEnv())
	assert.Equal(t, slog.LevelError, globalLevel.Level())
}
