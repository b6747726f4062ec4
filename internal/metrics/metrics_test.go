package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rms/order-service/internal/events"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRouteTemplate(t *testing.T) {
	m := New()
	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/api/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orders/"+id, nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/orders/{orderID}", "404"))
	assert.Equal(t, 2.0, got)
}

func TestEventSinkCountsByName(t *testing.T) {
	m := New()
	sink := m.EventSink()
	ctx := context.Background()

	require.NoError(t, sink.Send(ctx, events.Event{Name: events.NewOrder}))
	require.NoError(t, sink.Send(ctx, events.Event{Name: events.NewOrder}))
	require.NoError(t, sink.Send(ctx, events.Event{Name: events.ItemStatus}))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues(events.NewOrder)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues(events.ItemStatus)))
	assert.Equal(t, "metrics", sink.Name())
	assert.NoError(t, sink.Close())
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	require.NoError(t, m.EventSink().Send(context.Background(), events.Event{Name: events.OrderStatus}))

	resp := httptest.NewRecorder()
	m.Handler().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.Contains(resp.Body.String(), `order_service_events_published_total{event="OrderStatus"} 1`))
}

func TestMiddlewareKeepsStreamingInterfaces(t *testing.T) {
	m := New()
	r := mux.NewRouter()
	r.Use(m.Middleware)
	supported := make(chan [2]bool, 1)
	r.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		_, flusher := w.(http.Flusher)
		_, notifier := w.(http.CloseNotifier)
		supported <- [2]bool{flusher, notifier}
		_, _ = io.WriteString(w, "h\n")
		w.(http.Flusher).Flush()
	})
	r.HandleFunc("/upgrade", func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		defer conn.Close()
		_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok")
		_ = buf.Flush()
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "h\n", string(body))
	assert.Equal(t, [2]bool{true, true}, <-supported)

	resp, err = http.Get(srv.URL + "/upgrade")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	// A hijacked connection is recorded as a protocol switch.
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/upgrade", "101")) == 1
	}, time.Second, 10*time.Millisecond)
}
