package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestHandlerExposesEngineSeries(t *testing.T) {
	m := New()
	m.ObserveOperation("checkout", "ok", 3*time.Millisecond)
	m.SetDrawerBalance(decimal.NewFromInt(1150))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `restopos_engine_operations_total{operation="checkout",outcome="ok"} 1`) {
		t.Fatalf("expected operation counter in output:\n%s", body)
	}
	if !strings.Contains(body, "restopos_drawer_current_balance 1150") {
		t.Fatalf("expected drawer balance gauge in output")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("park", "ok", time.Millisecond)
	m.SetDrawerBalance(decimal.Zero)
	m.ObserveOutbox("published", 2)
}
