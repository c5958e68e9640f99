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
	"time"

	"triage-platform/internal/tool"
)

// topicMessage Kafka 消息记录
type topicMessage struct {
	Topic     string         `json:"topic"`
	Partition int            `json:"partition"`
	Offset    int64          `json:"offset"`
	Timestamp string         `json:"timestamp"`
	Value     map[string]any `json:"value"`
}

// RecentMessagesTool 实现 get_recent_messages：读取 Kafka 主题最近的消息。
// 演示环境内置固定主题快照。
type RecentMessagesTool struct {
	topics map[string][]topicMessage
}

// NewRecentMessagesTool 创建消息查询工具
func NewRecentMessagesTool() *RecentMessagesTool {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ts := func(m int) string { return base.Add(time.Duration(m) * time.Minute).Format(time.RFC3339) }
	return &RecentMessagesTool{
		topics: map[string][]topicMessage{
			"gpu-alerts": {
				{Topic: "gpu-alerts", Partition: 0, Offset: 101, Timestamp: ts(0), Value: map[string]any{"gpu_id": 0, "node": "gpu-node-2", "alert": "GPUTemperatureHigh", "value": 91.5}},
				{Topic: "gpu-alerts", Partition: 0, Offset: 102, Timestamp: ts(5), Value: map[string]any{"gpu_id": 0, "node": "gpu-node-2", "alert": "GPUMemoryLow", "value": 480}},
				{Topic: "gpu-alerts", Partition: 1, Offset: 88, Timestamp: ts(9), Value: map[string]any{"gpu_id": 1, "node": "gpu-node-1", "alert": "GPUTemperatureHigh", "value": 87.2}},
			},
			"error-logs": {
				{Topic: "error-logs", Partition: 0, Offset: 5501, Timestamp: ts(2), Value: map[string]any{"service": "payment-service", "level": "ERROR", "message": "connection pool exhausted"}},
				{Topic: "error-logs", Partition: 0, Offset: 5502, Timestamp: ts(7), Value: map[string]any{"service": "auth-service", "level": "ERROR", "message": "token validation timeout"}},
			},
			"triage-outcomes": {
				{Topic: "triage-outcomes", Partition: 0, Offset: 310, Timestamp: ts(-120), Value: map[string]any{"service": "kafka-broker", "action": "restart_pod", "status": "approved"}},
			},
		},
	}
}

// Name 实现 tool.Tool
func (t *RecentMessagesTool) Name() string { return "get_recent_messages" }

// Description 实现 tool.Tool
func (t *RecentMessagesTool) Description() string {
	return "Read the most recent messages from a Kafka topic. Useful topics: gpu-alerts, error-logs, triage-outcomes."
}

// Schema 实现 tool.Tool
func (t *RecentMessagesTool) Schema() tool.Schema {
	return tool.Schema{
		Type: "object",
		Properties: map[string]tool.SchemaProperty{
			"topic":       {Type: "string", Description: "Kafka topic name"},
			"count":       {Type: "integer", Description: "Maximum number of messages (default 10)"},
			"from_offset": {Type: "integer", Description: "Only messages at or after this offset"},
		},
		Required: []string{"topic"},
	}
}

// Execute 实现 tool.Tool
func (t *RecentMessagesTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	topic, _ := input["topic"].(string)
	if topic == "" {
		return tool.ToolResult{Err: "topic 不能为空"}, nil
	}
	count := intArg(input, "count", 10)

	msgs := t.topics[topic]
	if from, ok := input["from_offset"]; ok {
		offset := int64(intArg(map[string]any{"o": from}, "o", 0))
		filtered := make([]topicMessage, 0, len(msgs))
		for _, m := range msgs {
			if m.Offset >= offset {
				filtered = append(filtered, m)
			}
		}
		msgs = filtered
	}
	if len(msgs) > count {
		msgs = msgs[len(msgs)-count:]
	}
	raw, _ := json.Marshal(msgs)
	return tool.ToolResult{Content: string(raw)}, nil
}
