package bigip

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus collectors for device traffic.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploadBytes     prometheus.Counter
}

// NewMetrics creates the device client metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bigip_device_requests_total",
				Help: "Total number of REST requests sent to the device by method and status",
			},
			[]string{"method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bigip_device_request_duration_seconds",
				Help:    "Device REST request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		uploadBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bigip_device_upload_bytes_total",
				Help: "Total bytes uploaded through the file-transfer endpoint",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.requestDuration, m.uploadBytes)
	}
	return m
}
