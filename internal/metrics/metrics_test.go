package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSample(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveSample(true, 2048, 256, 50)
	m.ObserveSample(false, 0, 0, 0)

	if got := testutil.ToFloat64(m.SamplesTotal); got != 2 {
		t.Fatalf("expected 2 samples got %v", got)
	}
	if got := testutil.ToFloat64(m.ProcessUp); got != 0 {
		t.Fatalf("expected process down got %v", got)
	}
	if got := testutil.ToFloat64(m.UsagePercent); got != 0 {
		t.Fatalf("expected usage reset got %v", got)
	}
}

func TestObserveAlertsAndNotifications(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveAlert("high-memory")
	m.ObserveAlert("high-memory")
	m.ObserveAlert("crash")
	m.ObserveNotification(NotificationSkipped)
	m.SetRunning(true)

	if got := testutil.ToFloat64(m.AlertsTotal.WithLabelValues("high-memory")); got != 2 {
		t.Fatalf("expected 2 high-memory alerts got %v", got)
	}
	if got := testutil.ToFloat64(m.NotificationsTotal.WithLabelValues(NotificationSkipped)); got != 1 {
		t.Fatalf("expected 1 skipped notification got %v", got)
	}
	if got := testutil.ToFloat64(m.MonitorRunning); got != 1 {
		t.Fatalf("expected running gauge set got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSample(true, 1, 1, 1)
	m.ObserveSampleError()
	m.ObserveAlert("crash")
	m.ObserveNotification(NotificationFailed)
	m.SetRunning(false)
}
