package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertMetricLine matches one exposition line by name, a partial label pattern and
// value. The exporter adds otel scope labels, hence the regex.
func assertMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func scrape(t *testing.T, provider *Provider) string {
	t.Helper()
	w := httptest.NewRecorder()
	provider.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestBusinessMetrics(t *testing.T) {
	provider, err := NewProvider("apikeys_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "apikeys_test")
	require.NoError(t, err)

	ctx := context.Background()
	bm.RecordOperation(ctx, "token_issue", "success")
	bm.RecordOperation(ctx, "token_issue", "success")
	bm.RecordOperation(ctx, "token_revoke", "error")
	bm.RecordDuration(ctx, "token_issue", 2*time.Millisecond, "success")
	bm.RecordDuration(ctx, "token_issue", 3*time.Millisecond, "success")
	bm.RecordAuthenticationFailure(ctx, "revoked")
	bm.RecordAuthenticationFailure(ctx, "revoked")
	bm.RecordAuthenticationFailure(ctx, "ip_blocked")

	output := scrape(t, provider)

	assertMetricLine(t, output, `apikeys_test_token_operations_total`,
		`operation="token_issue".*status="success"`, `2`)
	assertMetricLine(t, output, `apikeys_test_token_operations_total`,
		`operation="token_revoke".*status="error"`, `1`)
	assertMetricLine(t, output, `apikeys_test_token_operation_duration_seconds_count`,
		`operation="token_issue".*status="success"`, `2`)
	assertMetricLine(t, output, `apikeys_test_authentication_failures_total`,
		`reason="revoked"`, `2`)
	assertMetricLine(t, output, `apikeys_test_authentication_failures_total`,
		`reason="ip_blocked"`, `1`)
}

func TestNoOpBusinessMetrics(t *testing.T) {
	bm := NewNoOpBusinessMetrics()
	assert.IsType(t, NoOpBusinessMetrics{}, bm)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		bm.RecordOperation(ctx, "token_issue", "success")
		bm.RecordDuration(ctx, "token_issue", time.Millisecond, "success")
		bm.RecordAuthenticationFailure(ctx, "expired")
	})
}
