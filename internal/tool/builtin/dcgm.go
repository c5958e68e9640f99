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

package builtin

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"time"

	"triage-platform/internal/tool"
)

// gpuStateRanges 各健康状态下的 DCGM 指标取值区间
var gpuStateRanges = map[string]map[string][2]float64{
	"healthy": {
		"DCGM_FI_DEV_GPU_UTIL":     {45, 65},
		"DCGM_FI_DEV_FB_FREE":      {8000, 12000},
		"DCGM_FI_DEV_POWER_USAGE":  {150, 200},
		"DCGM_FI_DEV_GPU_TEMP":     {55, 70},
		"DCGM_FI_DEV_ENCODER_UTIL": {10, 30},
		"DCGM_FI_DEV_DECODER_UTIL": {5, 15},
	},
	"stressed": {
		"DCGM_FI_DEV_GPU_UTIL":     {85, 100},
		"DCGM_FI_DEV_FB_FREE":      {500, 2000},
		"DCGM_FI_DEV_POWER_USAGE":  {280, 350},
		"DCGM_FI_DEV_GPU_TEMP":     {80, 95},
		"DCGM_FI_DEV_ENCODER_UTIL": {70, 95},
		"DCGM_FI_DEV_DECODER_UTIL": {60, 85},
	},
	"failing": {
		"DCGM_FI_DEV_GPU_UTIL":     {0, 15},
		"DCGM_FI_DEV_FB_FREE":      {100, 500},
		"DCGM_FI_DEV_POWER_USAGE":  {50, 100},
		"DCGM_FI_DEV_GPU_TEMP":     {90, 105},
		"DCGM_FI_DEV_ENCODER_UTIL": {0, 5},
		"DCGM_FI_DEV_DECODER_UTIL": {0, 5},
	},
}

// DCGMMetricsTool 实现 get_dcgm_metrics：查询单块 GPU 的当前 DCGM 指标
type DCGMMetricsTool struct {
	rng *rand.Rand
}

// NewDCGMMetricsTool 创建 GPU 指标工具
func NewDCGMMetricsTool() *DCGMMetricsTool {
	return &DCGMMetricsTool{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Name 实现 tool.Tool
func (t *DCGMMetricsTool) Name() string { return "get_dcgm_metrics" }

// Description 实现 tool.Tool
func (t *DCGMMetricsTool) Description() string {
	return "Query current DCGM metrics for one GPU: utilization, free framebuffer memory, power draw, temperature, encoder/decoder utilization."
}

// Schema 实现 tool.Tool
func (t *DCGMMetricsTool) Schema() tool.Schema {
	return tool.Schema{
		Type: "object",
		Properties: map[string]tool.SchemaProperty{
			"gpu_id":    {Type: "integer", Description: "GPU device ID, 0-indexed"},
			"node_name": {Type: "string", Description: "K8s node hosting the GPU"},
		},
	}
}

// Execute 实现 tool.Tool
func (t *DCGMMetricsTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	gpuID := intArg(input, "gpu_id", 0)
	node, _ := input["node_name"].(string)
	if node == "" {
		node = "gpu-node-1"
	}

	state := t.pickState()
	ranges := gpuStateRanges[state]
	metrics := map[string]any{
		"gpu_id":    gpuID,
		"node_name": node,
		"state":     state,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	values := make(map[string]float64, len(ranges))
	for name, r := range ranges {
		v := round4(r[0] + t.rng.Float64()*(r[1]-r[0]))
		values[name] = v
		metrics[name] = v
	}
	metrics["health_status"] = assessGPUHealth(values)

	raw, _ := json.Marshal(metrics)
	return tool.ToolResult{Content: string(raw)}, nil
}

// pickState 按 70/20/10 的权重挑选 GPU 状态
func (t *DCGMMetricsTool) pickState() string {
	r := t.rng.Float64()
	switch {
	case r < 0.7:
		return "healthy"
	case r < 0.9:
		return "stressed"
	default:
		return "failing"
	}
}

// assessGPUHealth 从指标推断健康标签
func assessGPUHealth(m map[string]float64) string {
	var issues []string
	if m["DCGM_FI_DEV_GPU_TEMP"] > 85 {
		issues = append(issues, "HIGH_TEMPERATURE")
	}
	if free, ok := m["DCGM_FI_DEV_FB_FREE"]; ok && free < 1000 {
		issues = append(issues, "LOW_MEMORY")
	}
	if m["DCGM_FI_DEV_POWER_USAGE"] > 300 {
		issues = append(issues, "HIGH_POWER")
	}
	if util, ok := m["DCGM_FI_DEV_GPU_UTIL"]; ok && util < 10 && m["DCGM_FI_DEV_GPU_TEMP"] > 80 {
		issues = append(issues, "THERMAL_THROTTLING")
	}
	if len(issues) > 0 {
		return "WARNING: " + strings.Join(issues, ", ")
	}
	return "HEALTHY"
}

// DCGMHistoryTool 实现 get_dcgm_history：拉取单项 DCGM 指标的历史序列
type DCGMHistoryTool struct {
	rng *rand.Rand
}

// NewDCGMHistoryTool 创建 GPU 历史指标工具
func NewDCGMHistoryTool() *DCGMHistoryTool {
	return &DCGMHistoryTool{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Name 实现 tool.Tool
func (t *DCGMHistoryTool) Name() string { return "get_dcgm_history" }

// Description 实现 tool.Tool
func (t *DCGMHistoryTool) Description() string {
	return "Get historical DCGM metric values for trend analysis. Temperature spikes with power drops suggest thermal throttling; shrinking free memory suggests an approaching OOM."
}

// Schema 实现 tool.Tool
func (t *DCGMHistoryTool) Schema() tool.Schema {
	return tool.Schema{
		Type: "object",
		Properties: map[string]tool.SchemaProperty{
			"gpu_id":      {Type: "integer", Description: "GPU device ID"},
			"metric_name": {Type: "string", Description: "DCGM metric name (default DCGM_FI_DEV_GPU_TEMP)"},
			"hours":       {Type: "integer", Description: "Hours of history (default 1)"},
		},
	}
}

// Execute 实现 tool.Tool
func (t *DCGMHistoryTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	gpuID := intArg(input, "gpu_id", 0)
	metric, _ := input["metric_name"].(string)
	if metric == "" {
		metric = "DCGM_FI_DEV_GPU_TEMP"
	}
	hours := intArg(input, "hours", 1)
	if hours <= 0 {
		hours = 1
	}

	type point struct {
		Timestamp string  `json:"timestamp"`
		Value     float64 `json:"value"`
		GPUID     int     `json:"gpu_id"`
	}
	now := time.Now().UTC()
	total := hours * 12 // 5 分钟间隔
	history := make([]point, total)
	for i := 0; i < total; i++ {
		var v float64
		if metric == "DCGM_FI_DEV_GPU_TEMP" {
			// 温度呈缓慢爬升趋势
			v = 60 + float64(total-i)*0.3 + (t.rng.Float64()*4 - 2)
		} else if r, ok := gpuStateRanges["healthy"][metric]; ok {
			v = r[0] + t.rng.Float64()*(r[1]-r[0])
		}
		history[total-1-i] = point{
			Timestamp: now.Add(-time.Duration(i*5) * time.Minute).Format(time.RFC3339),
			Value:     round4(v),
			GPUID:     gpuID,
		}
	}
	raw, _ := json.Marshal(history)
	return tool.ToolResult{Content: string(raw)}, nil
}

// ListGPUsTool 实现 list_dcgm_gpus：列出集群中受 DCGM 监控的 GPU
type ListGPUsTool struct{}

// NewListGPUsTool 创建 GPU 清单工具
func NewListGPUsTool() *ListGPUsTool { return &ListGPUsTool{} }

// Name 实现 tool.Tool
func (t *ListGPUsTool) Name() string { return "list_dcgm_gpus" }

// Description 实现 tool.Tool
func (t *ListGPUsTool) Description() string {
	return "List all GPUs monitored by DCGM in the cluster with their node assignments."
}

// Schema 实现 tool.Tool
func (t *ListGPUsTool) Schema() tool.Schema {
	return tool.Schema{Type: "object"}
}

// Execute 实现 tool.Tool
func (t *ListGPUsTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	type gpu struct {
		GPUID         int    `json:"gpu_id"`
		NodeName      string `json:"node_name"`
		GPUModel      string `json:"gpu_model"`
		DriverVersion string `json:"driver_version"`
		CUDAVersion   string `json:"cuda_version"`
		Status        string `json:"status"`
	}
	gpus := []gpu{
		{GPUID: 0, NodeName: "gpu-node-1", GPUModel: "NVIDIA A100-SXM4-80GB", DriverVersion: "535.104.12", CUDAVersion: "12.2", Status: "healthy"},
		{GPUID: 1, NodeName: "gpu-node-1", GPUModel: "NVIDIA A100-SXM4-80GB", DriverVersion: "535.104.12", CUDAVersion: "12.2", Status: "healthy"},
		{GPUID: 0, NodeName: "gpu-node-2", GPUModel: "NVIDIA A100-SXM4-80GB", DriverVersion: "535.104.12", CUDAVersion: "12.2", Status: "stressed"},
	}
	raw, _ := json.Marshal(gpus)
	return tool.ToolResult{Content: string(raw)}, nil
}
