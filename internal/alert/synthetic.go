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
	"fmt"
	"math/rand"
	"time"
)

// registryEntry 演示环境的服务注册信息
type registryEntry struct {
	Name        string
	Criticality string
	Region      string
	// 各指标的正常基线
	LatencyBaselineMs float64
	ErrorRateBaseline float64
	CPUBaseline       float64
	MemoryBaseline    float64
}

var serviceRegistry = []registryEntry{
	{Name: "payment-service", Criticality: "critical", Region: "us-central1", LatencyBaselineMs: 120, ErrorRateBaseline: 0.01, CPUBaseline: 35, MemoryBaseline: 48},
	{Name: "auth-service", Criticality: "critical", Region: "us-central1", LatencyBaselineMs: 80, ErrorRateBaseline: 0.005, CPUBaseline: 28, MemoryBaseline: 40},
	{Name: "database-primary", Criticality: "critical", Region: "us-east1", LatencyBaselineMs: 15, ErrorRateBaseline: 0.001, CPUBaseline: 45, MemoryBaseline: 62},
	{Name: "kafka-broker", Criticality: "critical", Region: "us-east1", LatencyBaselineMs: 25, ErrorRateBaseline: 0.002, CPUBaseline: 50, MemoryBaseline: 55},
	{Name: "checkout-api", Criticality: "high", Region: "us-central1", LatencyBaselineMs: 150, ErrorRateBaseline: 0.02, CPUBaseline: 32, MemoryBaseline: 44},
	{Name: "search-service", Criticality: "medium", Region: "eu-west1", LatencyBaselineMs: 200, ErrorRateBaseline: 0.03, CPUBaseline: 40, MemoryBaseline: 50},
	{Name: "recommendation-engine", Criticality: "low", Region: "eu-west1", LatencyBaselineMs: 300, ErrorRateBaseline: 0.05, CPUBaseline: 60, MemoryBaseline: 70},
}

var alertTypes = []AlertType{TypeLatencySpike, TypeErrorRate, TypeCPUAnomaly, TypeMemoryAnomaly}

var detectors = []string{"threshold", "zscore", "spectral", "rolling_mean"}

// Generator 生成演示用的合成告警
type Generator struct {
	rng *rand.Rand
}

// NewGenerator 创建告警生成器，seed 为 0 时使用当前时间
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Generate 生成一条带异常指标的告警。
// service 或 alertType 为空时随机挑选。
func (g *Generator) Generate(service string, alertType AlertType) Payload {
	entry := serviceRegistry[g.rng.Intn(len(serviceRegistry))]
	if service != "" {
		for _, e := range serviceRegistry {
			if e.Name == service {
				entry = e
				break
			}
		}
	}
	if alertType == "" {
		alertType = alertTypes[g.rng.Intn(len(alertTypes))]
	}

	snap := g.snapshot(entry, alertType)
	severity := g.severity(entry, alertType)

	logIDs := make([]string, 3)
	for i := range logIDs {
		logIDs[i] = fmt.Sprintf("log-%04d", 1000+g.rng.Intn(9000))
	}

	p := Payload{
		Service:        entry.Name,
		Severity:       severity,
		AlertType:      alertType,
		Detector:       detectors[g.rng.Intn(len(detectors))],
		MetricSnapshot: snap,
		Context: Context{
			RecentLogIDs: logIDs,
			Region:       entry.Region,
		},
	}
	return p.Normalize()
}

// snapshot 按告警类型放大对应指标，其余指标小幅抖动
func (g *Generator) snapshot(entry registryEntry, alertType AlertType) MetricSnapshot {
	mul := func(lo, hi float64) float64 { return lo + g.rng.Float64()*(hi-lo) }
	jitter := func() float64 { return mul(0.9, 1.3) }

	latMul, errMul, cpuMul, memMul := jitter(), jitter(), jitter(), jitter()
	switch alertType {
	case TypeLatencySpike:
		latMul = mul(5, 15)
	case TypeErrorRate:
		errMul = mul(8, 20)
	case TypeCPUAnomaly:
		cpuMul = mul(2, 2.8)
	case TypeMemoryAnomaly:
		memMul = mul(1.4, 1.6)
	}

	clamp := func(v, max float64) float64 {
		if v > max {
			return max
		}
		return v
	}
	f := func(v float64) *float64 { return &v }
	return MetricSnapshot{
		LatencyP95Ms:      f(entry.LatencyBaselineMs * latMul),
		LatencyBaselineMs: f(entry.LatencyBaselineMs),
		ErrorRate:         f(clamp(entry.ErrorRateBaseline*errMul, 1.0)),
		ErrorRateBaseline: f(entry.ErrorRateBaseline),
		CPUPercent:        f(clamp(entry.CPUBaseline*cpuMul, 100)),
		CPUBaseline:       f(entry.CPUBaseline),
		MemoryPercent:     f(clamp(entry.MemoryBaseline*memMul, 100)),
		MemoryBaseline:    f(entry.MemoryBaseline),
	}
}

func (g *Generator) severity(entry registryEntry, alertType AlertType) Severity {
	switch entry.Criticality {
	case "critical":
		if alertType == TypeLatencySpike || g.rng.Float64() > 0.3 {
			return SeverityCritical
		}
		return SeverityHigh
	case "high":
		if g.rng.Float64() > 0.5 {
			return SeverityHigh
		}
		return SeverityMedium
	default:
		if g.rng.Float64() > 0.5 {
			return SeverityMedium
		}
		return SeverityLow
	}
}
