package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPLabeler derives one extra request label after the handler chain ran, for
// example the environment of the token the request authenticated with.
type HTTPLabeler func(c *gin.Context) attribute.KeyValue

type httpInstruments struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newHTTPInstruments(meterProvider metric.MeterProvider, namespace string) (*httpInstruments, error) {
	meter := meterProvider.Meter(namespace)

	requests, err := meter.Int64Counter(
		fmt.Sprintf("%s_http_requests_total", namespace),
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		fmt.Sprintf("%s_http_request_duration_seconds", namespace),
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &httpInstruments{requests: requests, duration: duration}, nil
}

// HTTPMetricsMiddleware returns a gin middleware counting requests and their durations
// by method, route pattern and status code, plus one label per labeler.
// Unmatched routes share the "unmatched" route label to bound cardinality.
func HTTPMetricsMiddleware(
	meterProvider metric.MeterProvider,
	namespace string,
	labelers ...HTTPLabeler,
) gin.HandlerFunc {
	instruments, err := newHTTPInstruments(meterProvider, namespace)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := make([]attribute.KeyValue, 0, 3+len(labelers))
		attrs = append(attrs,
			attribute.String("method", c.Request.Method),
			attribute.String("route", routeLabel(c.FullPath())),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)
		for _, labeler := range labelers {
			attrs = append(attrs, labeler(c))
		}

		ctx := c.Request.Context()
		instruments.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
		instruments.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
	}
}

func routeLabel(fullPath string) string {
	if fullPath == "" {
		return "unmatched"
	}
	return fullPath
}
