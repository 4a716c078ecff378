package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "memwatch"

const (
	NotificationSent    = "sent"
	NotificationSkipped = "skipped"
	NotificationFailed  = "failed"
)

// Metrics exposes current values of the monitored process. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ProcessUp          prometheus.Gauge
	VirtualMegabytes   prometheus.Gauge
	ResidentMegabytes  prometheus.Gauge
	UsagePercent       prometheus.Gauge
	MonitorRunning     prometheus.Gauge
	SamplesTotal       prometheus.Counter
	SampleErrorsTotal  prometheus.Counter
	AlertsTotal        *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		ProcessUp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_up",
			Help:      "Whether the monitored process was present on the last sample",
		}),
		VirtualMegabytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_virtual_megabytes",
			Help:      "Virtual memory size of the monitored process on the last sample",
		}),
		ResidentMegabytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_resident_megabytes",
			Help:      "Resident memory (working set) of the monitored process on the last sample",
		}),
		UsagePercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_usage_percent",
			Help:      "Virtual memory of the monitored process relative to the configured total",
		}),
		MonitorRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_running",
			Help:      "Whether a monitoring session is active",
		}),
		SamplesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Number of samples taken",
		}),
		SampleErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_errors_total",
			Help:      "Number of samples that failed to query the operating system",
		}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Number of alert events emitted",
		}, []string{"kind"}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Number of notification attempts by outcome",
		}, []string{"result"}),
	}
}

func boolGauge(value bool) float64 {
	if value {
		return 1
	}
	return 0
}

func (m *Metrics) ObserveSample(found bool, virtualMb, residentMb, usagePercent float64) {
	if m == nil {
		return
	}
	m.SamplesTotal.Inc()
	m.ProcessUp.Set(boolGauge(found))
	m.VirtualMegabytes.Set(virtualMb)
	m.ResidentMegabytes.Set(residentMb)
	m.UsagePercent.Set(usagePercent)
}

func (m *Metrics) ObserveSampleError() {
	if m == nil {
		return
	}
	m.SampleErrorsTotal.Inc()
}

func (m *Metrics) ObserveAlert(kind string) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveNotification(result string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	m.MonitorRunning.Set(boolGauge(running))
}
