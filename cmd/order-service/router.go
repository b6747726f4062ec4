package main

import (
	"expvar"
	"net/http"

	"rms/order-service/internal/httpapi"
	"rms/order-service/internal/hub"
	"rms/order-service/internal/metrics"
	"rms/order-service/internal/realtime"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type routerDeps struct {
	service      httpapi.OrderService
	hub          *hub.Hub
	metrics      *metrics.Metrics
	clientBuffer int
	limits       httpapi.RateLimitConfig
	logger       *zap.Logger
}

// newHTTPHandler assembles the API, the realtime endpoint and the
// operational routes behind the shared middleware chain.
func newHTTPHandler(d routerDeps) http.Handler {
	router := httpapi.NewHandler(d.service, d.logger).Routes()
	router.Use(d.metrics.Middleware)
	router.Handle("/metrics", d.metrics.Handler()).Methods(http.MethodGet)
	router.Handle("/debug/vars", expvar.Handler()).Methods(http.MethodGet)
	router.PathPrefix(realtime.Prefix + "/").Handler(realtime.NewHandler(d.hub, d.clientBuffer, d.logger).HTTPHandler())

	limiter := httpapi.NewRateLimiter(d.limits)
	return otelhttp.NewHandler(httpapi.LoggingMiddleware(d.logger)(limiter.Middleware(router)), serviceName)
}
