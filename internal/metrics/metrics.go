// Package metrics exposes the server's counters and gauges in Prometheus
// text format via VictoriaMetrics' metrics library.
package metrics

import (
	"fmt"
	"net/http"

	vm "github.com/VictoriaMetrics/metrics"
)

// Inc increments the per-log message counter, labeled by operator and log
// URL so a single Grafana panel can break volume down per source.
func Inc(operator, logURL string) {
	vm.GetOrCreateCounter(fmt.Sprintf(`certstream_messages_total{operator=%q,log=%q}`, operator, logURL)).Inc()
}

// Init registers a log's counter at zero so it shows up in scrapes before
// its first message arrives.
func Init(operator, logURL string) {
	vm.GetOrCreateCounter(fmt.Sprintf(`certstream_messages_total{operator=%q,log=%q}`, operator, logURL))
}

// IncFetchErrors counts a failed get-entries call after retries were
// exhausted.
func IncFetchErrors(logURL string) {
	vm.GetOrCreateCounter(fmt.Sprintf(`certstream_fetch_errors_total{log=%q}`, logURL)).Inc()
}

// IncTreeSizeErrors counts a failed get-sth call after retries were
// exhausted.
func IncTreeSizeErrors(logURL string) {
	vm.GetOrCreateCounter(fmt.Sprintf(`certstream_tree_size_errors_total{log=%q}`, logURL)).Inc()
}

// IncConnectionLimitRejected counts a connection refused by the total
// connection cap.
func IncConnectionLimitRejected() {
	vm.GetOrCreateCounter(`certstream_connection_limit_rejected_total`).Inc()
}

// IncPerIPLimitRejected counts a connection refused by the per-IP cap.
func IncPerIPLimitRejected() {
	vm.GetOrCreateCounter(`certstream_per_ip_limit_rejected_total`).Inc()
}

// IncAuthRejected counts a request rejected by the bearer-token check.
func IncAuthRejected() {
	vm.GetOrCreateCounter(`certstream_auth_rejected_total`).Inc()
}

// SetActiveSubscribers records the current subscriber count for a given
// transport (websocket, sse, tcp).
func SetActiveSubscribers(transport string, count float64) {
	vm.GetOrCreateGauge(fmt.Sprintf(`certstream_active_subscribers{transport=%q}`, transport), nil).Set(count)
}

// SetCTLogsCount records how many CT logs the server is currently watching.
func SetCTLogsCount(count float64) {
	vm.GetOrCreateGauge(`certstream_ct_logs_count`, nil).Set(count)
}

// Handler returns an http.Handler serving the process's metrics in
// Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vm.WritePrometheus(w, true)
	})
}
