package middleware_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jun/socialnet/internal/middleware"
)

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = chimiddleware.GetReqID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(chimiddleware.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, "upstream-7")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-7", seen)
}

func TestLogger_LogsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := middleware.Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/AddFriend/a/b/c", nil))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "unmatched", fields["route"])
	assert.NotContains(t, fields, "path")
}

func TestLogger_KeepsTokensOutOfLogs(t *testing.T) {
	const tok = "eyJhbGciOiJIUzI1NksifQ.secret.sig"
	core, logs := observer.New(zap.DebugLevel)
	r := chi.NewRouter()
	r.Use(middleware.Logger(zap.New(core)))
	r.Get("/ReadEntityAuth/*", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ReadEntityAuth/T/"+tok+"/USA/Franklin,Aretha", nil))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "/ReadEntityAuth/*", fields["route"])
	for k, v := range fields {
		assert.NotContains(t, fmt.Sprint(v), "secret", k)
	}
}

func TestTracing_ContinuesCallerTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	spans := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)).Tracer("test")

	var inner trace.SpanContext
	r := chi.NewRouter()
	r.Use(middleware.Tracing(tracer))
	r.Put("/UpdateStatus/*", func(w http.ResponseWriter, r *http.Request) {
		inner = trace.SpanContextFromContext(r.Context())
		w.WriteHeader(http.StatusInternalServerError)
	})

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodPut, "/UpdateStatus/aretha/hi", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, traceID, inner.TraceID().String())
	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "PUT /UpdateStatus/*", ended[0].Name())
	assert.Equal(t, traceID, ended[0].Parent().TraceID().String())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

type httpObs struct {
	route  string
	status int
}

func (o *httpObs) ObserveHTTP(method, route string, status int, _ time.Duration) {
	o.route = route
	o.status = status
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	obs := &httpObs{}
	r := chi.NewRouter()
	r.Use(middleware.Metrics(obs))
	r.Get("/ReadFriendList/*", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ReadFriendList/aretha", nil))
	assert.Equal(t, "/ReadFriendList/*", obs.route)
	assert.Equal(t, http.StatusOK, obs.status)
}
