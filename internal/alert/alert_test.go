package alert

import (
	"encoding/json"
	"testing"
)

func TestSeverityHigh(t *testing.T) {
	cases := map[Severity]bool{
		SeverityCritical: true,
		SeverityHigh:     true,
		SeverityMedium:   false,
		SeverityLow:      false,
	}
	for sev, want := range cases {
		if got := sev.High(); got != want {
			t.Errorf("Severity(%s).High() = %v, want %v", sev, got, want)
		}
	}
}

func TestPayloadValidate(t *testing.T) {
	p := Payload{Service: "auth-service", Severity: SeverityCritical, AlertType: TypeLatencySpike}
	if err := p.Validate(); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	bad := Payload{Severity: "urgent", AlertType: TypeLatencySpike}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for missing service")
	}
	bad = Payload{Service: "x", Severity: "urgent", AlertType: TypeLatencySpike}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown severity")
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	p := Payload{Service: "auth-service", Severity: SeverityHigh, AlertType: TypeCPUAnomaly}
	n := p.Normalize()
	if n.ID == "" {
		t.Error("id not generated")
	}
	if n.Timestamp.IsZero() {
		t.Error("timestamp not filled")
	}
	if n.Detector != "threshold" {
		t.Errorf("detector = %q", n.Detector)
	}
}

func TestDeviations(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	snap := MetricSnapshot{
		LatencyP95Ms:      f(800),
		LatencyBaselineMs: f(100),
		ErrorRate:         f(0.2),
		// 没有基线，应跳过
		CPUPercent:  f(90),
		CPUBaseline: f(0),
	}
	devs := snap.Deviations()
	if len(devs) != 1 {
		t.Fatalf("expected 1 deviation, got %d", len(devs))
	}
	if devs[0].Metric != "latency_p95_ms" || devs[0].Ratio != 8 {
		t.Errorf("unexpected deviation: %+v", devs[0])
	}
}

func TestGeneratorDeterministic(t *testing.T) {
	a := NewGenerator(42).Generate("", "")
	b := NewGenerator(42).Generate("", "")
	a.ID, b.ID = "", ""
	b.Timestamp = a.Timestamp
	aj, _ := json.Marshal(a)
	b.Timestamp = a.Timestamp
	bj, _ := json.Marshal(b)
	if string(aj) != string(bj) {
		t.Errorf("same seed produced different alerts:\n%s\n%s", aj, bj)
	}
}

func TestGeneratorHonorsSelection(t *testing.T) {
	p := NewGenerator(7).Generate("payment-service", TypeErrorRate)
	if p.Service != "payment-service" {
		t.Errorf("service = %q", p.Service)
	}
	if p.AlertType != TypeErrorRate {
		t.Errorf("alert_type = %q", p.AlertType)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("generated alert invalid: %v", err)
	}
	if p.MetricSnapshot.ErrorRate == nil || p.MetricSnapshot.ErrorRateBaseline == nil {
		t.Fatal("error rate snapshot missing")
	}
	if *p.MetricSnapshot.ErrorRate <= *p.MetricSnapshot.ErrorRateBaseline {
		t.Error("error_rate_spike alert should exceed baseline")
	}
}
