package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/yonalabs/commerce-relay/pkg/configuration"
)

func testConfig() *configuration.Configuration {
	return &configuration.Configuration{
		RequestIDHeader: "X-Request-ID",
		RealIPHeader:    "X-Real-IP",
	}
}

func testLogger() (*logrus.Logger, *logrusHookRecorder) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	hook := &logrusHookRecorder{}
	l.AddHook(hook)
	return l, hook
}

type logrusHookRecorder struct {
	entries []*logrus.Entry
}

func (h *logrusHookRecorder) Levels() []logrus.Level { return logrus.AllLevels }

func (h *logrusHookRecorder) Fire(e *logrus.Entry) error {
	h.entries = append(h.entries, e)
	return nil
}

func TestWithLogger_LogsRequest(t *testing.T) {
	logger, hook := testLogger()

	r := mux.NewRouter()
	r.Use(WithLogger(logger, testConfig()))
	r.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.NotEmpty(t, hook.entries)

	last := hook.entries[len(hook.entries)-1]
	require.Equal(t, "req-42", last.Data["request_id"])
	require.Equal(t, http.StatusTeapot, last.Data["status"])
}

func TestWithLogger_RecoversPanic(t *testing.T) {
	logger, hook := testLogger()

	r := mux.NewRouter()
	r.Use(WithLogger(logger, testConfig()))
	r.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "INTERNAL")

	var sawPanic bool
	for _, e := range hook.entries {
		if _, ok := e.Data["panic"]; ok {
			sawPanic = true
		}
	}
	require.True(t, sawPanic, "panic should be logged")
}

func TestWithLogger_GeneratesRequestID(t *testing.T) {
	logger, hook := testLogger()

	r := mux.NewRouter()
	r.Use(WithLogger(logger, testConfig()))
	r.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	last := hook.entries[len(hook.entries)-1]
	require.NotEmpty(t, last.Data["request_id"])
}
