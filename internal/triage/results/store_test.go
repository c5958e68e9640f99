package results

import (
	"testing"
	"time"

	"triage-platform/internal/triage"
	"triage-platform/pkg/errors"
)

func TestPutGet(t *testing.T) {
	s := New()
	s.Put(&triage.Result{
		TriageID:  "t-1",
		Service:   "auth-service",
		Status:    triage.StatusPendingApproval,
		Anomalies: []string{"latency x8"},
		CreatedAt: time.Now(),
	})

	r, err := s.Get("t-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Service != "auth-service" || r.Status != triage.StatusPendingApproval {
		t.Errorf("unexpected result: %+v", r)
	}

	// 返回值是副本
	r.Anomalies[0] = "changed"
	again, _ := s.Get("t-1")
	if again.Anomalies[0] != "latency x8" {
		t.Error("stored result mutated by caller")
	}
}

func TestGetMissing(t *testing.T) {
	s := New()
	if _, err := s.Get("missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestPutOverwrites(t *testing.T) {
	s := New()
	s.Put(&triage.Result{TriageID: "t-1", Status: triage.StatusPendingApproval, CreatedAt: time.Now()})
	now := time.Now()
	s.Put(&triage.Result{TriageID: "t-1", Status: triage.StatusApproved, CompletedAt: &now, CreatedAt: now})

	r, _ := s.Get("t-1")
	if r.Status != triage.StatusApproved || r.CompletedAt == nil {
		t.Errorf("overwrite lost: %+v", r)
	}
}

func TestListOrdered(t *testing.T) {
	s := New()
	base := time.Now()
	s.Put(&triage.Result{TriageID: "old", CreatedAt: base.Add(-time.Hour)})
	s.Put(&triage.Result{TriageID: "new", CreatedAt: base})

	list := s.List()
	if len(list) != 2 || list[0].TriageID != "new" {
		t.Errorf("list order wrong: %v", list)
	}
}
