// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package triage

import (
	"time"
)

// Status triage 会话的终态
type Status string

const (
	// StatusPendingApproval 在 finalize 前挂起，等待人工批准
	StatusPendingApproval Status = "pending_approval"
	// StatusAutoApproved 通过 Guardrail 自动放行，一次调用内完成
	StatusAutoApproved Status = "auto_approved"
	// StatusApproved 人工批准后 resume 完成
	StatusApproved Status = "approved"
	// StatusRejected 会话失败或被人工否决
	StatusRejected Status = "rejected"
)

// Result triage 会话的产出
type Result struct {
	TriageID string        `json:"triage_id"`
	AlertID  string        `json:"alert_id"`
	Service  string        `json:"service"`
	Severity string        `json:"severity"`
	Status   Status        `json:"status"`

	LogsSummary      string     `json:"logs_summary,omitempty"`
	MetricsSummary   string     `json:"metrics_summary,omitempty"`
	Anomalies        []string   `json:"anomalies,omitempty"`
	SimilarIncidents []Incident `json:"similar_incidents,omitempty"`

	Hypothesis        string  `json:"hypothesis,omitempty"`
	RecommendedAction string  `json:"recommended_action,omitempty"`
	Confidence        float64 `json:"confidence"`
	RequiresApproval  bool    `json:"requires_approval"`

	Events []Event `json:"events"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ResultFromState 从会话状态导出结果
func ResultFromState(s *State, status Status) *Result {
	return &Result{
		TriageID:          s.TriageID,
		AlertID:           s.Alert.ID,
		Service:           s.Alert.Service,
		Severity:          string(s.Alert.Severity),
		Status:            status,
		LogsSummary:       s.LogsSummary,
		MetricsSummary:    s.MetricsSummary,
		Anomalies:         append([]string(nil), s.Anomalies...),
		SimilarIncidents:  append([]Incident(nil), s.SimilarIncidents...),
		Hypothesis:        s.Hypothesis,
		RecommendedAction: s.RecommendedAction,
		Confidence:        s.Confidence,
		RequiresApproval:  s.RequiresApproval,
		Events:            append([]Event(nil), s.Events...),
		CreatedAt:         time.Now().UTC(),
	}
}
