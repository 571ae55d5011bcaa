package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tradekart/marketauth"
)

type counterDef struct {
	id   marketauth.MetricID
	name string
	help string
}

var counterDefs = []counterDef{
	{marketauth.MetricRegisterAccepted, "marketauth_register_accepted_total", "Registration requests accepted into the pending phase."},
	{marketauth.MetricRegisterDuplicate, "marketauth_register_duplicate_total", "Registration attempts rejected as duplicate."},
	{marketauth.MetricOTPSent, "marketauth_otp_sent_total", "One-time codes delivered."},
	{marketauth.MetricOTPSendRateLimited, "marketauth_otp_send_rate_limited_total", "Code sends rejected by the cooldown."},
	{marketauth.MetricOTPSendLocked, "marketauth_otp_send_locked_total", "Code sends rejected by an hourly lock."},
	{marketauth.MetricVerifySuccess, "marketauth_verify_success_total", "Successful code verifications."},
	{marketauth.MetricVerifyFailure, "marketauth_verify_failure_total", "Failed code verifications."},
	{marketauth.MetricVerifyLocked, "marketauth_verify_locked_total", "Verifications rejected by a failure lock."},
	{marketauth.MetricLoginSuccess, "marketauth_login_success_total", "Successful logins."},
	{marketauth.MetricLoginFailure, "marketauth_login_failure_total", "Failed logins."},
	{marketauth.MetricRefreshSuccess, "marketauth_refresh_success_total", "Successful refresh rotations."},
	{marketauth.MetricRefreshReplayDetected, "marketauth_refresh_replay_detected_total", "Refresh rotations rejected as replays."},
	{marketauth.MetricRefreshFailure, "marketauth_refresh_failure_total", "Failed refresh rotations."},
	{marketauth.MetricLogout, "marketauth_logout_total", "Logout operations."},
	{marketauth.MetricResetRequested, "marketauth_reset_requested_total", "Password reset requests."},
	{marketauth.MetricResetCompleted, "marketauth_reset_completed_total", "Completed password resets."},
	{marketauth.MetricStoreUnavailable, "marketauth_store_unavailable_total", "Operations failed on backend store errors."},
	{marketauth.MetricDeliveryFailure, "marketauth_delivery_failure_total", "Code deliveries that failed every strategy."},
}

type metricsSource interface {
	Metrics() *marketauth.Metrics
	AuditDropped() uint64
}

// Exporter renders engine counters in Prometheus text exposition format.
type Exporter struct {
	source metricsSource
}

// NewExporter creates an exporter reading from the given engine.
func NewExporter(engine *marketauth.Engine) *Exporter {
	return &Exporter{source: engine}
}

// Handler returns an http.Handler serving the current counters.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render writes the current counters in text exposition format.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}

	snapshot := e.source.Metrics().Snapshot()

	var b strings.Builder
	b.Grow(4096)
	for _, def := range counterDefs {
		writeCounter(&b, def.name, def.help, snapshot.Counters[def.id])
	}
	writeCounter(&b, "marketauth_audit_dropped_total",
		"Audit events dropped under dispatcher backpressure.", e.source.AuditDropped())

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
