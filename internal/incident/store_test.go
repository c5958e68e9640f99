package incident

import (
	"context"
	"testing"

	"triage-platform/internal/triage"
)

func TestSearchSimilarRanking(t *testing.T) {
	s := NewMemStore()
	got, err := s.SearchSimilar(context.Background(), "payment-service", "latency_spike", 3)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 incidents, got %d", len(got))
	}
	// 服务与类型都命中的排最前
	if got[0].Service != "payment-service" || got[0].Type != "latency_spike" {
		t.Errorf("top incident: %+v", got[0])
	}
	if got[0].Similarity != 0.87 {
		t.Errorf("top similarity = %v", got[0].Similarity)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Similarity > got[i-1].Similarity {
			t.Error("results not sorted by similarity")
		}
	}
}

func TestSearchSimilarLimit(t *testing.T) {
	s := NewMemStore()
	got, _ := s.SearchSimilar(context.Background(), "search-service", "cpu_anomaly", 0)
	if len(got) != len(seedIncidents()) {
		t.Errorf("limit 0 should return all, got %d", len(got))
	}
}

func TestAdd(t *testing.T) {
	s := NewMemStore()
	err := s.Add(context.Background(), triage.Incident{
		ID: "INC-2026-0001", Service: "recommendation-engine", Type: "memory_anomaly",
		Resolution: "Raised pod memory limit",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, _ := s.SearchSimilar(context.Background(), "recommendation-engine", "memory_anomaly", 1)
	if len(got) != 1 || got[0].ID != "INC-2026-0001" {
		t.Errorf("added incident not found: %v", got)
	}
}
