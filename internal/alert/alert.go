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

package alert

import (
	"time"

	"github.com/google/uuid"

	"triage-platform/pkg/errors"
)

// Severity 告警级别
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// High 是否属于需要人工关注的高级别告警
func (s Severity) High() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// Valid 检查级别取值是否合法
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// AlertType 异常类型
type AlertType string

const (
	TypeLatencySpike  AlertType = "latency_spike"
	TypeErrorRate     AlertType = "error_rate_spike"
	TypeCPUAnomaly    AlertType = "cpu_anomaly"
	TypeMemoryAnomaly AlertType = "memory_anomaly"
)

// MetricSnapshot 告警触发时刻的指标快照，字段均可为空
type MetricSnapshot struct {
	LatencyP95Ms      *float64 `json:"latency_p95_ms,omitempty"`
	LatencyBaselineMs *float64 `json:"latency_baseline_ms,omitempty"`
	ErrorRate         *float64 `json:"error_rate,omitempty"`
	ErrorRateBaseline *float64 `json:"error_rate_baseline,omitempty"`
	CPUPercent        *float64 `json:"cpu_percent,omitempty"`
	CPUBaseline       *float64 `json:"cpu_baseline,omitempty"`
	MemoryPercent     *float64 `json:"memory_percent,omitempty"`
	MemoryBaseline    *float64 `json:"memory_baseline,omitempty"`
}

// Deviation 描述单项指标相对基线的偏移
type Deviation struct {
	Metric   string  `json:"metric"`
	Current  float64 `json:"current"`
	Baseline float64 `json:"baseline"`
	Ratio    float64 `json:"ratio"`
}

// Deviations 返回所有同时带有当前值和基线的指标偏移，基线为 0 时跳过
func (m *MetricSnapshot) Deviations() []Deviation {
	if m == nil {
		return nil
	}
	pairs := []struct {
		name             string
		current, baselin *float64
	}{
		{"latency_p95_ms", m.LatencyP95Ms, m.LatencyBaselineMs},
		{"error_rate", m.ErrorRate, m.ErrorRateBaseline},
		{"cpu_percent", m.CPUPercent, m.CPUBaseline},
		{"memory_percent", m.MemoryPercent, m.MemoryBaseline},
	}
	var out []Deviation
	for _, p := range pairs {
		if p.current == nil || p.baselin == nil || *p.baselin == 0 {
			continue
		}
		out = append(out, Deviation{
			Metric:   p.name,
			Current:  *p.current,
			Baseline: *p.baselin,
			Ratio:    *p.current / *p.baselin,
		})
	}
	return out
}

// Context 告警的附加上下文
type Context struct {
	RecentLogIDs      []string `json:"recent_log_ids,omitempty"`
	Region            string   `json:"region,omitempty"`
	DeploymentVersion string   `json:"deployment_version,omitempty"`
	RelatedAlerts     []string `json:"related_alerts,omitempty"`
}

// Payload 监控系统上报的告警载荷
type Payload struct {
	ID             string         `json:"id"`
	Service        string         `json:"service"`
	Severity       Severity       `json:"severity"`
	AlertType      AlertType      `json:"alert_type"`
	Detector       string         `json:"detector"`
	Timestamp      time.Time      `json:"timestamp"`
	MetricSnapshot MetricSnapshot `json:"metric_snapshot"`
	Context        Context        `json:"context"`
}

// Validate 校验告警载荷的必填字段
func (p *Payload) Validate() error {
	if p.Service == "" {
		return errors.Wrap(errors.ErrInvalidArg, "alert service is required")
	}
	if !p.Severity.Valid() {
		return errors.Wrapf(errors.ErrInvalidArg, "unknown severity %q", p.Severity)
	}
	if p.AlertType == "" {
		return errors.Wrap(errors.ErrInvalidArg, "alert_type is required")
	}
	return nil
}

// Normalize 填充缺省字段，返回规整后的副本
func (p Payload) Normalize() Payload {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	if p.Detector == "" {
		p.Detector = "threshold"
	}
	return p
}
