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
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/common/model"

	"triage-platform/internal/tool"
)

// QueryPrometheusTool 实现 query_prometheus：执行 PromQL 即时查询。
// 未配置地址或请求失败时返回合成向量。
type QueryPrometheusTool struct {
	client *resty.Client
}

// NewQueryPrometheusTool 创建 PromQL 查询工具，promURL 可为空
func NewQueryPrometheusTool(promURL string) *QueryPrometheusTool {
	var client *resty.Client
	if promURL != "" {
		client = resty.New().SetBaseURL(promURL).SetTimeout(5 * time.Second)
	}
	return &QueryPrometheusTool{client: client}
}

// Name 实现 tool.Tool
func (t *QueryPrometheusTool) Name() string { return "query_prometheus" }

// Description 实现 tool.Tool
func (t *QueryPrometheusTool) Description() string {
	return "Execute a PromQL query against Prometheus. Examples: rate(http_requests_total[5m]), histogram_quantile(0.95, http_request_duration_seconds), DCGM_FI_DEV_GPU_TEMP{gpu=\"0\"}."
}

// Schema 实现 tool.Tool
func (t *QueryPrometheusTool) Schema() tool.Schema {
	return tool.Schema{
		Type: "object",
		Properties: map[string]tool.SchemaProperty{
			"query":      {Type: "string", Description: "PromQL query string"},
			"time_range": {Type: "string", Description: "Range for range queries, e.g. 5m or 1h"},
		},
		Required: []string{"query"},
	}
}

// Execute 实现 tool.Tool
func (t *QueryPrometheusTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	query, _ := input["query"].(string)
	if query == "" {
		return tool.ToolResult{Err: "query 不能为空"}, nil
	}

	if t.client != nil {
		resp, err := t.client.R().
			SetContext(ctx).
			SetQueryParam("query", query).
			Get("/api/v1/query")
		if err == nil && !resp.IsError() {
			if content, ok := renderQueryResponse(resp.Body()); ok {
				return tool.ToolResult{Content: content}, nil
			}
			return tool.ToolResult{Content: resp.String()}, nil
		}
	}

	out := map[string]any{
		"status": "success",
		"data": map[string]any{
			"resultType": "vector",
			"result":     syntheticVector(query),
		},
		"query":       query,
		"executed_at": time.Now().UTC().Format(time.RFC3339),
	}
	raw, _ := json.Marshal(out)
	return tool.ToolResult{Content: string(raw)}, nil
}

// renderQueryResponse 将 Prometheus 即时查询响应解析为紧凑的样本列表，
// 只处理 vector 结果，解析失败时交回原始响应
func renderQueryResponse(body []byte) (string, bool) {
	var apiResp struct {
		Status string `json:"status"`
		Data   struct {
			ResultType string          `json:"resultType"`
			Result     json.RawMessage `json:"result"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil || apiResp.Status != "success" {
		return "", false
	}
	if apiResp.Data.ResultType != "vector" {
		return "", false
	}
	var vec model.Vector
	if err := json.Unmarshal(apiResp.Data.Result, &vec); err != nil {
		return "", false
	}
	samples := make([]map[string]any, 0, len(vec))
	for _, s := range vec {
		samples = append(samples, map[string]any{
			"metric":    s.Metric.String(),
			"value":     float64(s.Value),
			"timestamp": s.Timestamp.Time().UTC().Format(time.RFC3339),
		})
	}
	out := map[string]any{
		"status":     "success",
		"resultType": "vector",
		"result":     samples,
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// syntheticVector 按查询关键词返回匹配的演示数据
func syntheticVector(query string) []map[string]any {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "http_requests_total") || strings.Contains(q, "rate"):
		return []map[string]any{
			{"service": "auth-service", "status": "200", "value": 125000},
			{"service": "auth-service", "status": "500", "value": 45},
			{"service": "payment-service", "status": "200", "value": 89000},
		}
	case strings.Contains(q, "duration") || strings.Contains(q, "latency"):
		return []map[string]any{
			{"service": "auth-service", "quantile": "0.95", "value": 0.45},
			{"service": "auth-service", "quantile": "0.99", "value": 0.89},
			{"service": "payment-service", "quantile": "0.95", "value": 0.12},
		}
	case strings.Contains(q, "memory"):
		return []map[string]any{
			{"pod": "auth-service-abc123", "namespace": "production", "value": 512000000},
			{"pod": "payment-service-def456", "namespace": "production", "value": 256000000},
		}
	case strings.Contains(q, "dcgm"):
		return []map[string]any{
			{"metric": "DCGM_FI_DEV_GPU_TEMP", "gpu": "0", "value": 88.5},
			{"metric": "DCGM_FI_DEV_GPU_UTIL", "gpu": "0", "value": 96.0},
			{"metric": "DCGM_FI_DEV_FB_FREE", "gpu": "0", "value": 850},
		}
	case strings.Contains(q, "up"):
		return []map[string]any{
			{"instance": "auth-service:8080", "job": "kubernetes-pods", "value": 1},
			{"instance": "payment-service:8080", "job": "kubernetes-pods", "value": 1},
			{"instance": "gpu-node-1:9100", "job": "node-exporter", "value": 1},
		}
	}
	return nil
}

var knownMetrics = []string{
	"up",
	"kube_pod_status_phase",
	"kube_deployment_status_replicas_available",
	"container_cpu_usage_seconds_total",
	"container_memory_usage_bytes",
	"container_network_receive_bytes_total",
	"http_requests_total",
	"http_request_duration_seconds",
	"http_request_size_bytes",
	"http_response_size_bytes",
	"node_cpu_seconds_total",
	"node_memory_MemAvailable_bytes",
	"node_disk_io_time_seconds_total",
	"node_network_receive_bytes_total",
	"DCGM_FI_DEV_GPU_UTIL",
	"DCGM_FI_DEV_FB_FREE",
	"DCGM_FI_DEV_FB_USED",
	"DCGM_FI_DEV_POWER_USAGE",
	"DCGM_FI_DEV_GPU_TEMP",
	"DCGM_FI_DEV_SM_CLOCK",
	"DCGM_FI_DEV_MEM_CLOCK",
	"DCGM_FI_DEV_ENCODER_UTIL",
	"DCGM_FI_DEV_DECODER_UTIL",
	"DCGM_FI_DEV_PCIE_TX_THROUGHPUT",
	"DCGM_FI_DEV_PCIE_RX_THROUGHPUT",
	"DCGM_FI_DEV_XID_ERRORS",
}

// ListMetricsTool 实现 list_metrics：列出可查询的指标名
type ListMetricsTool struct{}

// NewListMetricsTool 创建指标列表工具
func NewListMetricsTool() *ListMetricsTool { return &ListMetricsTool{} }

// Name 实现 tool.Tool
func (t *ListMetricsTool) Name() string { return "list_metrics" }

// Description 实现 tool.Tool
func (t *ListMetricsTool) Description() string {
	return "List available Prometheus metric names, optionally filtered by a regex pattern. Use before querying to discover metrics."
}

// Schema 实现 tool.Tool
func (t *ListMetricsTool) Schema() tool.Schema {
	return tool.Schema{
		Type: "object",
		Properties: map[string]tool.SchemaProperty{
			"filter_pattern": {Type: "string", Description: "Regex to filter metric names, case-insensitive"},
		},
	}
}

// Execute 实现 tool.Tool
func (t *ListMetricsTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	metrics := knownMetrics
	if pattern, _ := input["filter_pattern"].(string); pattern != "" {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return tool.ToolResult{Err: fmt.Sprintf("非法过滤表达式: %v", err)}, nil
		}
		filtered := make([]string, 0, len(metrics))
		for _, m := range metrics {
			if re.MatchString(m) {
				filtered = append(filtered, m)
			}
		}
		metrics = filtered
	}
	raw, _ := json.Marshal(metrics)
	return tool.ToolResult{Content: string(raw)}, nil
}

// alertRule Prometheus 告警规则
type alertRule struct {
	Name     string `json:"name"`
	Expr     string `json:"expr"`
	For      string `json:"for"`
	Severity string `json:"severity"`
	Service  string `json:"service"`
}

// AlertRulesTool 实现 get_alert_rules：查看配置的告警规则
type AlertRulesTool struct{}

// NewAlertRulesTool 创建告警规则工具
func NewAlertRulesTool() *AlertRulesTool { return &AlertRulesTool{} }

// Name 实现 tool.Tool
func (t *AlertRulesTool) Name() string { return "get_alert_rules" }

// Description 实现 tool.Tool
func (t *AlertRulesTool) Description() string {
	return "Get configured Prometheus alert rules. Use to understand what conditions trigger alerts."
}

// Schema 实现 tool.Tool
func (t *AlertRulesTool) Schema() tool.Schema {
	return tool.Schema{Type: "object"}
}

// Execute 实现 tool.Tool
func (t *AlertRulesTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	rules := []alertRule{
		{Name: "HighLatency", Expr: "histogram_quantile(0.95, http_request_duration_seconds) > 0.5", For: "5m", Severity: "warning", Service: "all"},
		{Name: "HighErrorRate", Expr: "rate(http_requests_total{status=~'5..'}[5m]) / rate(http_requests_total[5m]) > 0.05", For: "2m", Severity: "critical", Service: "all"},
		{Name: "GPUTemperatureHigh", Expr: "DCGM_FI_DEV_GPU_TEMP > 85", For: "5m", Severity: "warning", Service: "gpu-cluster"},
		{Name: "GPUMemoryLow", Expr: "DCGM_FI_DEV_FB_FREE < 1000", For: "5m", Severity: "critical", Service: "gpu-cluster"},
		{Name: "PodCrashLooping", Expr: "rate(kube_pod_container_status_restarts_total[15m]) > 0.1", For: "10m", Severity: "critical", Service: "all"},
	}
	raw, _ := json.Marshal(rules)
	return tool.ToolResult{Content: string(raw)}, nil
}

// ServiceMetricsTool 实现 get_service_metrics：拉取某服务一段时间的指标序列，
// 附带均值、最大值和 P95 汇总。演示环境生成末端带尖峰的序列。
type ServiceMetricsTool struct {
	rng *rand.Rand
}

// NewServiceMetricsTool 创建服务指标工具
func NewServiceMetricsTool() *ServiceMetricsTool {
	return &ServiceMetricsTool{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Name 实现 tool.Tool
func (t *ServiceMetricsTool) Name() string { return "get_service_metrics" }

// Description 实现 tool.Tool
func (t *ServiceMetricsTool) Description() string {
	return "Fetch recent metric history (cpu, memory, latency, error rate) for a service. Use to spot spikes or trends correlated with an alert."
}

// Schema 实现 tool.Tool
func (t *ServiceMetricsTool) Schema() tool.Schema {
	return tool.Schema{
		Type: "object",
		Properties: map[string]tool.SchemaProperty{
			"service_name":       {Type: "string", Description: "Service to fetch metrics for"},
			"metric_name":        {Type: "string", Description: "Metric to fetch, e.g. cpu_usage or error_rate"},
			"time_range_minutes": {Type: "integer", Description: "Window length in minutes (default 15)"},
		},
		Required: []string{"service_name", "metric_name"},
	}
}

// Execute 实现 tool.Tool
func (t *ServiceMetricsTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	service, _ := input["service_name"].(string)
	metric, _ := input["metric_name"].(string)
	if service == "" || metric == "" {
		return tool.ToolResult{Err: "service_name 和 metric_name 不能为空"}, nil
	}
	minutes := intArg(input, "time_range_minutes", 15)
	if minutes <= 0 {
		minutes = 15
	}

	base := 0.05
	if strings.Contains(metric, "cpu") {
		base = 100
	}
	now := time.Now().UTC()
	type point struct {
		TS  string  `json:"ts"`
		Val float64 `json:"val"`
	}
	points := make([]point, minutes)
	values := make([]float64, minutes)
	for i := 0; i < minutes; i++ {
		v := base * (1 + (t.rng.Float64()*0.2 - 0.1))
		// 最近两分钟模拟一个尖峰
		if i == 0 {
			v *= 3.5
		} else if i == 1 {
			v *= 2.8
		}
		values[i] = v
		points[i] = point{TS: now.Add(-time.Duration(i) * time.Minute).Format(time.RFC3339), Val: round4(v)}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range values {
		sum += v
	}
	out := map[string]any{
		"service":     service,
		"metric":      metric,
		"time_range":  fmt.Sprintf("%dm", minutes),
		"data_points": points,
		"summary": map[string]float64{
			"mean": round4(sum / float64(len(values))),
			"max":  round4(sorted[len(sorted)-1]),
			"p95":  round4(sorted[int(float64(len(sorted))*0.95)]),
		},
	}
	raw, _ := json.Marshal(out)
	return tool.ToolResult{Content: string(raw)}, nil
}

func round4(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}
