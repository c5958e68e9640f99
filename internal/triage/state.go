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

	"github.com/cloudwego/eino/schema"

	"triage-platform/internal/alert"
)

// Event 审计事件，每个阶段至少追加一条，驱动 UI 的执行轨迹
type Event struct {
	Stage     string         `json:"stage"`
	Summary   string         `json:"summary"`
	Timestamp time.Time      `json:"ts"`
	ToolCalls []string       `json:"tool_calls,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewEvent 创建带当前时间戳的事件
func NewEvent(stage, summary string) Event {
	return Event{Stage: stage, Summary: summary, Timestamp: time.Now().UTC()}
}

// Incident 相似历史事件记录
type Incident struct {
	ID         string  `json:"id"`
	Service    string  `json:"service"`
	Type       string  `json:"type"`
	Resolution string  `json:"resolution"`
	Similarity float64 `json:"similarity"`
}

// State 单次 triage 会话的状态，贯穿所有阶段。
// 同一 triage_id 同时只存在一份，引擎在会话生命周期内独占写入。
type State struct {
	TriageID string        `json:"triage_id"`
	Alert    alert.Payload `json:"alert"`

	// LLM 消息历史，只追加
	Messages []*schema.Message `json:"messages"`

	// 各阶段产出
	LogsSummary      string     `json:"logs_summary,omitempty"`
	MetricsSummary   string     `json:"metrics_summary,omitempty"`
	Anomalies        []string   `json:"anomalies,omitempty"`
	SimilarIncidents []Incident `json:"similar_incidents,omitempty"`

	// 决策
	Hypothesis        string  `json:"hypothesis,omitempty"`
	RecommendedAction string  `json:"recommended_action,omitempty"`
	Confidence        float64 `json:"confidence"`
	RequiresApproval  bool    `json:"requires_approval"`

	// 审计轨迹，只追加，从不截断
	Events []Event `json:"events"`
}

// NewState 创建初始状态。requires_approval 默认 true，由
// Guardrail 或校验阶段显式放行。
func NewState(triageID string, a alert.Payload) *State {
	return &State{
		TriageID:         triageID,
		Alert:            a,
		RequiresApproval: true,
	}
}

// Update 阶段返回的局部更新。nil 字段表示不修改；
// Messages 和 Events 追加，其余字段整体覆盖。
type Update struct {
	Messages []*schema.Message
	Events   []Event

	LogsSummary       *string
	MetricsSummary    *string
	Hypothesis        *string
	RecommendedAction *string
	Confidence        *float64
	RequiresApproval  *bool

	Anomalies        []string
	SimilarIncidents []Incident
}

// Apply 按字段合并规则应用局部更新。
// 追加字段保持原有顺序，覆盖字段以最后一次写入为准。
func (s *State) Apply(u Update) {
	s.Messages = append(s.Messages, u.Messages...)
	s.Events = append(s.Events, u.Events...)

	if u.LogsSummary != nil {
		s.LogsSummary = *u.LogsSummary
	}
	if u.MetricsSummary != nil {
		s.MetricsSummary = *u.MetricsSummary
	}
	if u.Hypothesis != nil {
		s.Hypothesis = *u.Hypothesis
	}
	if u.RecommendedAction != nil {
		s.RecommendedAction = *u.RecommendedAction
	}
	if u.Confidence != nil {
		s.Confidence = *u.Confidence
	}
	if u.RequiresApproval != nil {
		s.RequiresApproval = *u.RequiresApproval
	}
	if u.Anomalies != nil {
		s.Anomalies = append([]string(nil), u.Anomalies...)
	}
	if u.SimilarIncidents != nil {
		s.SimilarIncidents = append([]Incident(nil), u.SimilarIncidents...)
	}
}

// LastMessage 返回消息历史中最后一条，历史为空返回 nil
func (s *State) LastMessage() *schema.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// Clone 深拷贝状态，供检查点和并发读取使用
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]*schema.Message, len(s.Messages))
	for i, m := range s.Messages {
		if m != nil {
			mc := *m
			mc.ToolCalls = append([]schema.ToolCall(nil), m.ToolCalls...)
			out.Messages[i] = &mc
		}
	}
	out.Events = make([]Event, len(s.Events))
	for i, e := range s.Events {
		ec := e
		ec.ToolCalls = append([]string(nil), e.ToolCalls...)
		if e.Metadata != nil {
			ec.Metadata = make(map[string]any, len(e.Metadata))
			for k, v := range e.Metadata {
				ec.Metadata[k] = v
			}
		}
		out.Events[i] = ec
	}
	out.Anomalies = append([]string(nil), s.Anomalies...)
	out.SimilarIncidents = append([]Incident(nil), s.SimilarIncidents...)
	return &out
}

// 指针构造辅助，供阶段拼装 Update 使用

func Str(s string) *string    { return &s }
func Float(f float64) *float64 { return &f }
func Bool(b bool) *bool       { return &b }
