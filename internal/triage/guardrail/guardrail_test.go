package guardrail

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"triage-platform/internal/alert"
	"triage-platform/pkg/config"
)

// scriptedGateway 按固定回答响应，并记录是否被调用
type scriptedGateway struct {
	answer string
	err    error
	called bool
	lastIn string
}

func (s *scriptedGateway) Invoke(ctx context.Context, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	s.called = true
	if len(messages) > 0 {
		s.lastIn = messages[len(messages)-1].Content
	}
	if s.err != nil {
		return nil, s.err
	}
	return schema.AssistantMessage(s.answer, nil), nil
}

func newGate(gw *scriptedGateway) *Gate {
	return New(config.GuardrailConfig{}, gw, nil)
}

func TestHighRiskKeywordShortCircuits(t *testing.T) {
	gw := &scriptedGateway{answer: "AUTO_OK"}
	g := newGate(gw)

	d := g.Validate(context.Background(), "terminate pod-7", "checkout", 0.95, alert.SeverityLow)
	if d.Allowed {
		t.Error("high-risk action allowed")
	}
	if !d.RequiresApproval {
		t.Error("high-risk action must require approval")
	}
	if !strings.Contains(d.Reason, "terminate") {
		t.Errorf("reason should mention matched keyword: %q", d.Reason)
	}
	if gw.called {
		t.Error("model must not be consulted when layer 1 blocks")
	}
}

func TestCriticalServiceBlocks(t *testing.T) {
	gw := &scriptedGateway{answer: "AUTO_OK"}
	g := newGate(gw)

	d := g.Validate(context.Background(), "scale replicas to 5", "payment-service", 0.95, alert.SeverityLow)
	if d.Allowed || !d.RequiresApproval {
		t.Error("critical service action must require approval")
	}
	if !strings.Contains(d.Reason, "payment-service") {
		t.Errorf("reason = %q", d.Reason)
	}
	if gw.called {
		t.Error("model consulted for critical service")
	}
}

func TestLowConfidenceBlocks(t *testing.T) {
	gw := &scriptedGateway{answer: "AUTO_OK"}
	g := newGate(gw)

	d := g.Validate(context.Background(), "scale replicas to 5", "reporting-service", 0.5, alert.SeverityLow)
	if d.Allowed || !d.RequiresApproval {
		t.Error("low confidence must require approval")
	}
	if gw.called {
		t.Error("model consulted below confidence floor")
	}
}

func TestModelLayerAutoApproves(t *testing.T) {
	gw := &scriptedGateway{answer: "AUTO_OK\nThe action only adds capacity and is trivially reversible."}
	g := newGate(gw)

	d := g.Validate(context.Background(), "scale replicas to 5", "reporting-service", 0.9, alert.SeverityLow)
	if !gw.called {
		t.Fatal("model layer not consulted")
	}
	if !d.Allowed || d.RequiresApproval {
		t.Errorf("expected auto-approval, got %+v", d)
	}
}

func TestSeverityOverridesModel(t *testing.T) {
	for _, sev := range []alert.Severity{alert.SeverityCritical, alert.SeverityHigh} {
		gw := &scriptedGateway{answer: "AUTO_OK"}
		g := newGate(gw)

		d := g.Validate(context.Background(), "scale replicas to 5", "reporting-service", 0.9, sev)
		if d.Allowed || !d.RequiresApproval {
			t.Errorf("severity %s must override model auto-approval", sev)
		}
	}
}

func TestModelRequiresApproval(t *testing.T) {
	gw := &scriptedGateway{answer: "APPROVAL_REQUIRED\nRolling restart drops in-flight requests."}
	g := newGate(gw)

	d := g.Validate(context.Background(), "rolling restart of pods", "reporting-service", 0.9, alert.SeverityLow)
	if d.Allowed || !d.RequiresApproval {
		t.Error("model APPROVAL_REQUIRED ignored")
	}
}

func TestModelFailureFailsSafe(t *testing.T) {
	gw := &scriptedGateway{err: errors.New("upstream timeout")}
	g := newGate(gw)

	d := g.Validate(context.Background(), "scale replicas to 5", "reporting-service", 0.9, alert.SeverityLow)
	if d.Allowed || !d.RequiresApproval {
		t.Error("gateway failure must fail safe")
	}
	if !strings.Contains(d.Reason, "failed") {
		t.Errorf("reason = %q", d.Reason)
	}
}

func TestNilGatewayFailsSafe(t *testing.T) {
	g := New(config.GuardrailConfig{}, nil, nil)
	d := g.Validate(context.Background(), "scale replicas to 5", "reporting-service", 0.9, alert.SeverityLow)
	if d.Allowed || !d.RequiresApproval {
		t.Error("missing model layer must fail safe")
	}
}

func TestActionSanitizedBeforeModel(t *testing.T) {
	gw := &scriptedGateway{answer: "AUTO_OK"}
	g := newGate(gw)

	g.Validate(context.Background(),
		"notify ops@example.com and rotate key sk-abcdefghijklmnopqrstuvwx on 10.0.0.12",
		"reporting-service", 0.9, alert.SeverityLow)

	if strings.Contains(gw.lastIn, "ops@example.com") || strings.Contains(gw.lastIn, "10.0.0.12") {
		t.Errorf("PII leaked to model: %q", gw.lastIn)
	}
	if !strings.Contains(gw.lastIn, "[EMAIL]") || !strings.Contains(gw.lastIn, "[IP_ADDR]") {
		t.Errorf("placeholders missing: %q", gw.lastIn)
	}
}

func TestAmbiguousAnswerRequiresApproval(t *testing.T) {
	gw := &scriptedGateway{answer: "It might be fine, probably."}
	g := newGate(gw)

	d := g.Validate(context.Background(), "scale replicas to 5", "reporting-service", 0.9, alert.SeverityLow)
	if d.Allowed || !d.RequiresApproval {
		t.Error("ambiguous model answer must bias toward approval")
	}
}
