package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestHazardAlertsTotalIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.HazardAlertsTotal.WithLabelValues("pull_up_now", "critical").Inc()
	m.HazardAlertsTotal.WithLabelValues("pull_up_now", "critical").Inc()

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	var found *dto.MetricFamily
	for _, mf := range metricFamilies {
		if mf.GetName() == "cfi_hazard_alerts_total" {
			found = mf
		}
	}
	if found == nil {
		t.Fatalf("metric cfi_hazard_alerts_total not registered")
	}
	if got := found.Metric[0].Counter.GetValue(); got != 2 {
		t.Errorf("counter value = %v, want 2", got)
	}
}

func TestCurrentPhaseGaugeSet(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CurrentPhase.WithLabelValues("CRUISE").Set(1)
	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "cfi_phase_current" {
			found = true
		}
	}
	if !found {
		t.Fatalf("metric cfi_phase_current not registered")
	}
}
