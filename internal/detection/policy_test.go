package detection

import (
	"math"
	"testing"

	"github.com/memlab/memwatch/internal/sampling"
)

func testConfig() MonitorConfig {
	config := DefaultMonitorConfig()
	config.ProcessName = "AutomationDesk.exe"
	config.TotalMemoryMb = 100 // usagePercent == VirtualMb
	return config
}

func foundAt(usagePercent float64) sampling.Sample {
	return sampling.Sample{Found: true, VirtualMb: usagePercent, ResidentMb: usagePercent / 4}
}

func runSequence(config MonitorConfig, samples []sampling.Sample) []*AlertEvent {
	monitorState := NewMonitorState()
	events := make([]*AlertEvent, 0, len(samples))
	for _, sample := range samples {
		var event *AlertEvent
		monitorState, event = Evaluate(config, monitorState, sample)
		events = append(events, event)
	}
	return events
}

func countKind(events []*AlertEvent, kind AlertKind) int {
	count := 0
	for _, event := range events {
		if event != nil && event.Kind == kind {
			count++
		}
	}
	return count
}

func TestEvaluateScenarioHysteresis(t *testing.T) {
	usages := []float64{50, 72, 74, 77, 60, 73}
	expected := []float64{0, 72, 0, 77, 0, 73} // 0 means no event.

	samples := make([]sampling.Sample, 0, len(usages))
	for _, usage := range usages {
		samples = append(samples, foundAt(usage))
	}

	events := runSequence(testConfig(), samples)
	for i, event := range events {
		if expected[i] == 0 {
			if event != nil {
				t.Fatalf("tick %d: expected no event got %+v", i, event)
			}
			continue
		}
		if event == nil || event.Kind != AlertKindHighMemory {
			t.Fatalf("tick %d: expected high-memory event got %+v", i, event)
		}
		if math.Abs(event.UsagePercent-expected[i]) > 1e-9 {
			t.Fatalf("tick %d: expected usage %v got %v", i, expected[i], event.UsagePercent)
		}
		if event.Process != "AutomationDesk.exe" {
			t.Fatalf("tick %d: unexpected process %q", i, event.Process)
		}
	}
}

func TestEvaluateScenarioCrash(t *testing.T) {
	present := []bool{true, true, false, false, true}
	samples := make([]sampling.Sample, 0, len(present))
	for _, found := range present {
		if found {
			samples = append(samples, foundAt(10))
		} else {
			samples = append(samples, sampling.Sample{})
		}
	}

	events := runSequence(testConfig(), samples)
	for i, event := range events {
		if i == 2 {
			if event == nil || event.Kind != AlertKindCrash || event.Process != "AutomationDesk.exe" {
				t.Fatalf("tick %d: expected crash event got %+v", i, event)
			}
			continue
		}
		if event != nil {
			t.Fatalf("tick %d: expected no event got %+v", i, event)
		}
	}
}

func TestEvaluateSingleCrossingWithinStep(t *testing.T) {
	sequences := [][]float64{
		{70, 70, 70},
		{71, 74.99, 72, 75.5},
		{50, 80, 84.9, 81, 83, 84},
	}
	for _, usages := range sequences {
		samples := make([]sampling.Sample, 0, len(usages))
		for _, usage := range usages {
			samples = append(samples, foundAt(usage))
		}
		if got := countKind(runSequence(testConfig(), samples), AlertKindHighMemory); got != 1 {
			t.Fatalf("sequence %v: expected exactly 1 high-memory event got %d", usages, got)
		}
	}
}

func TestEvaluateDipResetsWatermark(t *testing.T) {
	usages := []float64{71, 72, 69.99, 71}
	samples := make([]sampling.Sample, 0, len(usages))
	for _, usage := range usages {
		samples = append(samples, foundAt(usage))
	}
	if got := countKind(runSequence(testConfig(), samples), AlertKindHighMemory); got != 2 {
		t.Fatalf("expected 2 high-memory events got %d", got)
	}
}

func TestEvaluateCrashResetsWatermark(t *testing.T) {
	config := testConfig()

	monitorState, event := Evaluate(config, NewMonitorState(), foundAt(80))
	if event == nil || !monitorState.LastAlertWatermark.Valid {
		t.Fatalf("expected alert and watermark")
	}

	monitorState, event = Evaluate(config, monitorState, sampling.Sample{})
	if event == nil || event.Kind != AlertKindCrash {
		t.Fatalf("expected crash got %+v", event)
	}
	if monitorState.LastAlertWatermark.Valid || monitorState.LastKnownPresent {
		t.Fatalf("expected watermark reset and absent state got %+v", monitorState)
	}

	_, event = Evaluate(config, monitorState, foundAt(80))
	if event == nil || event.Kind != AlertKindHighMemory {
		t.Fatalf("expected fresh high-memory alert after restart got %+v", event)
	}
}

func TestEvaluateFirstSampleAbsentIsCrash(t *testing.T) {
	_, event := Evaluate(testConfig(), NewMonitorState(), sampling.Sample{})
	if event == nil || event.Kind != AlertKindCrash {
		t.Fatalf("expected crash on first absent sample got %+v", event)
	}
}

func TestEvaluateRepeatCrashAlerts(t *testing.T) {
	config := testConfig()
	config.RepeatCrashAlerts = true

	events := runSequence(config, []sampling.Sample{{}, {}, {}, foundAt(10)})
	if got := countKind(events, AlertKindCrash); got != 3 {
		t.Fatalf("expected 3 crash events got %d", got)
	}
}

func TestEvaluateUsesTotalMemory(t *testing.T) {
	config := DefaultMonitorConfig() // 4096 MB total, 70% threshold.

	_, event := Evaluate(config, NewMonitorState(), sampling.Sample{Found: true, VirtualMb: 2048, ResidentMb: 256})
	if event != nil {
		t.Fatalf("expected no event at 50%% got %+v", event)
	}

	_, event = Evaluate(config, NewMonitorState(), sampling.Sample{Found: true, VirtualMb: 3072, ResidentMb: 256})
	if event == nil || event.UsagePercent != 75 || event.VirtualMb != 3072 || event.ResidentMb != 256 {
		t.Fatalf("expected high-memory event at 75%% got %+v", event)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	config := testConfig()
	monitorState := NewMonitorState()
	monitorState, _ = Evaluate(config, monitorState, foundAt(72))

	for _, sample := range []sampling.Sample{foundAt(74), foundAt(80), foundAt(10), {}} {
		stateA, eventA := Evaluate(config, monitorState, sample)
		stateB, eventB := Evaluate(config, monitorState, sample)

		if stateA != stateB {
			t.Fatalf("states differ for %+v: %+v vs %+v", sample, stateA, stateB)
		}
		if (eventA == nil) != (eventB == nil) || (eventA != nil && *eventA != *eventB) {
			t.Fatalf("events differ for %+v: %+v vs %+v", sample, eventA, eventB)
		}
	}

	if monitorState.LastAlertWatermark.Float64 != 72 {
		t.Fatalf("input state was mutated: %+v", monitorState)
	}
}

func TestMonitorConfigValid(t *testing.T) {
	config := DefaultMonitorConfig()
	if valid, err := config.Valid(); !valid {
		t.Fatalf("expected default config to be valid: %v", err)
	}

	config.ProcessName = ""
	config.ThresholdPercent = 120
	config.PollInterval = 0
	if valid, err := config.Valid(); valid || err == nil {
		t.Fatalf("expected invalid config")
	}
}

func TestAlertKindName(t *testing.T) {
	if AlertKindHighMemory.Name() != "high-memory" || AlertKindCrash.Name() != "crash" || AlertKind(0).Name() != "" {
		t.Fatalf("unexpected alert kind names")
	}
}
