package triage

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/cloudwego/eino/schema"

	"triage-platform/internal/alert"
)

func testAlert() alert.Payload {
	return alert.Payload{
		ID:        "alert-1",
		Service:   "payment-service",
		Severity:  alert.SeverityCritical,
		AlertType: alert.TypeLatencySpike,
		Detector:  "threshold",
	}.Normalize()
}

func TestApplyAppendsAccumulators(t *testing.T) {
	s := NewState("t-1", testAlert())
	if !s.RequiresApproval {
		t.Fatal("requires_approval should default true")
	}

	s.Apply(Update{
		Messages: []*schema.Message{schema.UserMessage("hello")},
		Events:   []Event{NewEvent("gather_context", "gathered")},
	})
	s.Apply(Update{
		Messages: []*schema.Message{schema.AssistantMessage("hi", nil)},
		Events:   []Event{NewEvent("analyze_logs", "analyzed")},
	})

	if len(s.Messages) != 2 || len(s.Events) != 2 {
		t.Fatalf("messages=%d events=%d", len(s.Messages), len(s.Events))
	}
	if s.Events[0].Stage != "gather_context" || s.Events[1].Stage != "analyze_logs" {
		t.Error("event order not preserved")
	}
	if s.LastMessage().Content != "hi" {
		t.Errorf("last message = %q", s.LastMessage().Content)
	}
}

func TestApplyLastWriteWins(t *testing.T) {
	s := NewState("t-1", testAlert())

	s.Apply(Update{
		LogsSummary: Str("first"),
		Confidence:  Float(0.4),
		Anomalies:   []string{"a"},
	})
	s.Apply(Update{
		LogsSummary: Str("second"),
		Anomalies:   []string{"b", "c"},
	})

	if s.LogsSummary != "second" {
		t.Errorf("logs_summary = %q", s.LogsSummary)
	}
	if s.Confidence != 0.4 {
		t.Errorf("absent confidence overwritten: %v", s.Confidence)
	}
	if !reflect.DeepEqual(s.Anomalies, []string{"b", "c"}) {
		t.Errorf("anomalies = %v", s.Anomalies)
	}
}

func TestApplyLeavesAbsentFieldsUntouched(t *testing.T) {
	s := NewState("t-1", testAlert())
	s.Apply(Update{RequiresApproval: Bool(false), Hypothesis: Str("oom")})
	s.Apply(Update{MetricsSummary: Str("cpu spiked")})

	if s.RequiresApproval {
		t.Error("requires_approval reset by unrelated update")
	}
	if s.Hypothesis != "oom" {
		t.Errorf("hypothesis = %q", s.Hypothesis)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := NewState("t-1", testAlert())
	s.Apply(Update{
		Messages:  []*schema.Message{schema.UserMessage("m")},
		Events:    []Event{{Stage: "gather_context", Summary: "x", Metadata: map[string]any{"k": "v"}}},
		Anomalies: []string{"latency"},
	})

	c := s.Clone()
	c.Messages[0].Content = "changed"
	c.Events[0].Metadata["k"] = "other"
	c.Anomalies[0] = "other"

	if s.Messages[0].Content != "m" {
		t.Error("message shared between clone and original")
	}
	if s.Events[0].Metadata["k"] != "v" {
		t.Error("event metadata shared")
	}
	if s.Anomalies[0] != "latency" {
		t.Error("anomalies shared")
	}
}

func TestStateJSONRoundTrip(t *testing.T) {
	s := NewState("t-1", testAlert())
	s.Apply(Update{
		Messages: []*schema.Message{
			schema.SystemMessage("sys"),
			{
				Role:    schema.Assistant,
				Content: "",
				ToolCalls: []schema.ToolCall{
					{ID: "call-1", Function: schema.FunctionCall{Name: "search_logs", Arguments: `{"query":"error"}`}},
				},
			},
			schema.ToolMessage("result", "call-1"),
		},
		Events:           []Event{NewEvent("analyze_logs", "requested tools")},
		LogsSummary:      Str("errors found"),
		Confidence:       Float(0.8),
		SimilarIncidents: []Incident{{ID: "INC-2025-1234", Similarity: 0.87}},
	})

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back State
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if back.TriageID != s.TriageID || back.Confidence != s.Confidence {
		t.Error("scalar fields lost")
	}
	if len(back.Messages) != 3 || len(back.Events) != 1 {
		t.Fatalf("sequences lost: messages=%d events=%d", len(back.Messages), len(back.Events))
	}
	if back.Messages[1].ToolCalls[0].Function.Name != "search_logs" {
		t.Error("tool call lost in round trip")
	}
	if back.SimilarIncidents[0].ID != "INC-2025-1234" {
		t.Error("incidents lost")
	}
}

func TestResultFromState(t *testing.T) {
	s := NewState("t-9", testAlert())
	s.Apply(Update{
		Hypothesis:        Str("db pool exhausted"),
		RecommendedAction: Str("restart pod"),
		Confidence:        Float(0.9),
		Events:            []Event{NewEvent("finalize", "done")},
	})

	r := ResultFromState(s, StatusPendingApproval)
	if r.TriageID != "t-9" || r.Service != "payment-service" || r.Severity != "critical" {
		t.Errorf("identity fields: %+v", r)
	}
	if r.Status != StatusPendingApproval || r.CompletedAt != nil {
		t.Error("pending result should have no completion time")
	}
	if r.Hypothesis != "db pool exhausted" || r.RecommendedAction != "restart pod" {
		t.Error("decision fields lost")
	}
	if len(r.Events) != 1 {
		t.Error("event trace lost")
	}
}
