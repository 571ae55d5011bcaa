package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tradekart/marketauth"
)

type stubSource struct {
	metrics *marketauth.Metrics
	dropped uint64
}

func (s *stubSource) Metrics() *marketauth.Metrics { return s.metrics }
func (s *stubSource) AuditDropped() uint64         { return s.dropped }

func newStubSource() *stubSource {
	m := marketauth.NewMetrics(true)
	m.Inc(marketauth.MetricLoginSuccess)
	m.Inc(marketauth.MetricLoginSuccess)
	m.Inc(marketauth.MetricRefreshReplayDetected)
	return &stubSource{metrics: m, dropped: 3}
}

func TestRenderExpositionFormat(t *testing.T) {
	e := &Exporter{source: newStubSource()}

	out := e.Render()
	for _, want := range []string{
		"# TYPE marketauth_login_success_total counter\nmarketauth_login_success_total 2\n",
		"marketauth_refresh_replay_detected_total 1\n",
		"marketauth_login_failure_total 0\n",
		"marketauth_audit_dropped_total 3\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestRenderEverySeriesHasHelpAndType(t *testing.T) {
	e := &Exporter{source: newStubSource()}

	out := e.Render()
	help := strings.Count(out, "# HELP ")
	typ := strings.Count(out, "# TYPE ")
	if help != len(counterDefs)+1 || typ != len(counterDefs)+1 {
		t.Fatalf("expected %d HELP/TYPE pairs, got %d/%d", len(counterDefs)+1, help, typ)
	}
}

func TestHandlerServesText(t *testing.T) {
	e := &Exporter{source: newStubSource()}

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "marketauth_login_success_total 2") {
		t.Fatalf("unexpected body:\n%s", body)
	}
}

func TestNilExporterRendersEmpty(t *testing.T) {
	var e *Exporter
	if out := e.Render(); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}
