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

// Package observe 记录每次 triage 各阶段的执行指标：
// 耗时、token 估算、成本、工具调用次数。按 triage_id 分区并发安全，
// 同时向全局 Prometheus 指标上报。
package observe

import (
	"sync"
	"time"

	"triage-platform/pkg/metrics"
)

// StageMetrics 单个阶段一次执行的指标
type StageMetrics struct {
	Stage            string        `json:"stage"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          time.Time     `json:"end_time"`
	Duration         time.Duration `json:"duration"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	CostUSD          float64       `json:"cost_usd"`
	ToolCallCount    int           `json:"tool_call_count"`
	Success          bool          `json:"success"`
	Error            string        `json:"error,omitempty"`
}

// Registry 按 triage_id 汇总阶段指标
type Registry struct {
	mu       sync.RWMutex
	byTriage map[string][]StageMetrics
	// 每 1K token 的估算单价，用于成本计算
	costPer1K float64
}

// NewRegistry 创建指标注册表
func NewRegistry(costPer1K float64) *Registry {
	return &Registry{
		byTriage:  make(map[string][]StageMetrics),
		costPer1K: costPer1K,
	}
}

// Record 追加一条阶段指标，并同步到 Prometheus
func (r *Registry) Record(triageID string, m StageMetrics) {
	r.mu.Lock()
	r.byTriage[triageID] = append(r.byTriage[triageID], m)
	r.mu.Unlock()

	metrics.StageDuration.WithLabelValues(m.Stage).Observe(m.Duration.Seconds())
	if !m.Success {
		metrics.TriageFailTotal.WithLabelValues(m.Stage).Inc()
	}
	if m.PromptTokens > 0 {
		metrics.LLMTokensTotal.WithLabelValues("prompt").Add(float64(m.PromptTokens))
	}
	if m.CompletionTokens > 0 {
		metrics.LLMTokensTotal.WithLabelValues("completion").Add(float64(m.CompletionTokens))
	}
}

// Get 返回某次 triage 的全部阶段指标副本
func (r *Registry) Get(triageID string) []StageMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]StageMetrics(nil), r.byTriage[triageID]...)
}

// Tracker 单个阶段执行的作用域跟踪器。用法：
//
//	t := reg.Track(id, "analyze_logs")
//	... 调用模型 ...
//	t.TrackTokens(prompt, response)
//	t.Done(err)
type Tracker struct {
	reg      *Registry
	triageID string
	m        StageMetrics
}

// Track 开始跟踪一个阶段
func (r *Registry) Track(triageID, stage string) *Tracker {
	return &Tracker{
		reg:      r,
		triageID: triageID,
		m: StageMetrics{
			Stage:     stage,
			StartTime: time.Now(),
		},
	}
}

// TrackTokens 估算 token 用量，约 4 字符 1 token
func (t *Tracker) TrackTokens(prompt, response string) {
	t.m.PromptTokens += len(prompt) / 4
	t.m.CompletionTokens += len(response) / 4
}

// AddToolCalls 累加工具调用次数
func (t *Tracker) AddToolCalls(n int) {
	t.m.ToolCallCount += n
}

// Done 结束跟踪并写入注册表。err 为 nil 记为成功。
func (t *Tracker) Done(err error) {
	t.m.EndTime = time.Now()
	t.m.Duration = t.m.EndTime.Sub(t.m.StartTime)
	t.m.TotalTokens = t.m.PromptTokens + t.m.CompletionTokens
	t.m.CostUSD = float64(t.m.TotalTokens) / 1000 * t.reg.costPer1K
	t.m.Success = err == nil
	if err != nil {
		t.m.Error = err.Error()
	}
	t.reg.Record(t.triageID, t.m)
}
