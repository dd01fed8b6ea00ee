package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "layoutd_build_info",
			Help: "Build information for layoutd",
		},
		[]string{"date", "sha", "version"},
	)

	connections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layoutd_connections_total",
			Help: "Connections handled by the layout listener, by result",
		},
		[]string{"result"},
	)

	acceptErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "layoutd_accept_errors_total",
			Help: "Transient accept failures on the layout listener",
		},
	)

	bytesServed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "layoutd_bytes_served_total",
			Help: "Layout bytes written to clients",
		},
	)

	advertised = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "layoutd_advertised",
			Help: "1 while the service is registered for discovery",
		},
	)
)

// Register registers layoutd collectors with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, connections, acceptErrors, bytesServed, advertised)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// ConnectionServed counts a completed download of n bytes.
func ConnectionServed(n int) {
	connections.WithLabelValues("served").Inc()
	bytesServed.Add(float64(n))
}

// ConnectionFailed counts a connection that ended in an error.
func ConnectionFailed() { connections.WithLabelValues("failed").Inc() }

// AcceptError counts a transient accept failure.
func AcceptError() { acceptErrors.Inc() }

// SetAdvertised records whether a discovery registration is live.
func SetAdvertised(on bool) {
	if on {
		advertised.Set(1)
		return
	}
	advertised.Set(0)
}
