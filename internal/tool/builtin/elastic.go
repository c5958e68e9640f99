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
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"triage-platform/internal/tool"
)

// logEntry 单条日志记录
type logEntry struct {
	Timestamp string            `json:"timestamp"`
	Service   string            `json:"service"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata"`
}

var logTemplates = []string{
	"ERROR: Connection refused to database after 3 retries",
	"WARN: Low memory detected on pod %s",
	"INFO: Processing request ID %d - latency 250ms",
	"ERROR: Segmentation fault in NVSCI driver component",
	"CRITICAL: Resource deadlock detected in connection pool",
}

// SearchLogsTool 实现 search_logs：查询 Elasticsearch 日志。
// 未配置地址或查询失败时退化为合成日志，保证离线演示可用。
type SearchLogsTool struct {
	client *resty.Client
	rng    *rand.Rand
}

// NewSearchLogsTool 创建日志查询工具，esURL 可为空
func NewSearchLogsTool(esURL string) *SearchLogsTool {
	var client *resty.Client
	if esURL != "" {
		client = resty.New().SetBaseURL(esURL).SetTimeout(10 * time.Second)
	}
	return &SearchLogsTool{
		client: client,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name 实现 tool.Tool
func (t *SearchLogsTool) Name() string { return "search_logs" }

// Description 实现 tool.Tool
func (t *SearchLogsTool) Description() string {
	return "Search logs in Elasticsearch for a specific service. Use this to find error messages, stack traces, or systemic issues."
}

// Schema 实现 tool.Tool
func (t *SearchLogsTool) Schema() tool.Schema {
	return tool.Schema{
		Type: "object",
		Properties: map[string]tool.SchemaProperty{
			"service_name": {Type: "string", Description: "Service to search logs for"},
			"query":        {Type: "string", Description: "Search query, e.g. 'error' or 'timeout'"},
			"num_results":  {Type: "integer", Description: "Maximum number of log lines to return (default 5)"},
		},
		Required: []string{"service_name", "query"},
	}
}

// Execute 实现 tool.Tool
func (t *SearchLogsTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	service, _ := input["service_name"].(string)
	query, _ := input["query"].(string)
	if service == "" || query == "" {
		return tool.ToolResult{Err: "service_name 和 query 不能为空"}, nil
	}
	size := intArg(input, "num_results", 5)

	if t.client != nil {
		if res, err := t.search(ctx, service, query, size); err == nil {
			return tool.ToolResult{Content: res}, nil
		}
		// 查询失败时落入合成数据
	}

	logs := t.synthetic(service, query, size)
	raw, _ := json.Marshal(logs)
	return tool.ToolResult{Content: string(raw)}, nil
}

func (t *SearchLogsTool) search(ctx context.Context, service, query string, size int) (string, error) {
	body := map[string]any{
		"size": size,
		"sort": []map[string]string{{"@timestamp": "desc"}},
		"query": map[string]any{
			"bool": map[string]any{
				"must": []map[string]any{
					{"match": map[string]string{"service": service}},
					{"query_string": map[string]string{"query": query}},
				},
			},
		},
	}
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/logs-*/_search")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("elasticsearch 返回 %d", resp.StatusCode())
	}
	return resp.String(), nil
}

func (t *SearchLogsTool) synthetic(service, query string, size int) []logEntry {
	level := "INFO"
	if strings.Contains(strings.ToLower(query), "error") {
		level = "ERROR"
	}
	now := time.Now().UTC()
	logs := make([]logEntry, 0, size)
	for i := 0; i < size; i++ {
		msg := logTemplates[t.rng.Intn(len(logTemplates))]
		if strings.Contains(msg, "%s") {
			msg = fmt.Sprintf(msg, fmt.Sprintf("%s-v2-%d", service, 100+t.rng.Intn(900)))
		} else if strings.Contains(msg, "%d") {
			msg = fmt.Sprintf(msg, 1000+t.rng.Intn(9000))
		}
		logs = append(logs, logEntry{
			Timestamp: now.Add(-time.Duration(i*30) * time.Second).Format(time.RFC3339),
			Service:   service,
			Level:     level,
			Message:   msg,
			Metadata: map[string]string{
				"cluster": []string{"SaturnV", "Selene"}[t.rng.Intn(2)],
				"pod_id":  fmt.Sprintf("%s-v2-%d", service, 100+t.rng.Intn(900)),
			},
		})
	}
	return logs
}

func intArg(input map[string]any, key string, def int) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}
