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

// Package incident 历史事件知识库，按服务与告警类型检索相似事件。
package incident

import (
	"context"
	"sort"
	"sync"

	"triage-platform/internal/triage"
)

// Store 事件知识库接口
type Store interface {
	// SearchSimilar 返回与 service/alertType 最相似的历史事件，相似度降序
	SearchSimilar(ctx context.Context, service, alertType string, limit int) ([]triage.Incident, error)
	// Add 录入一条历史事件
	Add(ctx context.Context, inc triage.Incident) error
}

// seedIncidents 演示环境的初始知识库
func seedIncidents() []triage.Incident {
	return []triage.Incident{
		{ID: "INC-2025-1234", Service: "payment-service", Type: "latency_spike", Resolution: "Scaled up replicas from 3 to 5", Similarity: 0},
		{ID: "INC-2025-1100", Service: "payment-service", Type: "latency_spike", Resolution: "Applied rate limiting to upstream", Similarity: 0},
		{ID: "INC-2025-0991", Service: "auth-service", Type: "error_rate_spike", Resolution: "Rolled back deployment v2.14.1", Similarity: 0},
		{ID: "INC-2025-0870", Service: "kafka-broker", Type: "cpu_anomaly", Resolution: "Rebalanced partitions across brokers", Similarity: 0},
		{ID: "INC-2025-0755", Service: "database-primary", Type: "memory_anomaly", Resolution: "Tuned shared_buffers and restarted replica first", Similarity: 0},
		{ID: "INC-2025-0662", Service: "checkout-api", Type: "latency_spike", Resolution: "Increased connection pool size from 20 to 50", Similarity: 0},
		{ID: "INC-2025-0514", Service: "search-service", Type: "cpu_anomaly", Resolution: "Enabled query result cache", Similarity: 0},
	}
}

// score 朴素相似度：服务与类型都命中 0.87，仅类型 0.72，仅服务 0.61，否则 0.35
func score(inc triage.Incident, service, alertType string) float64 {
	switch {
	case inc.Service == service && inc.Type == alertType:
		return 0.87
	case inc.Type == alertType:
		return 0.72
	case inc.Service == service:
		return 0.61
	default:
		return 0.35
	}
}

func rank(all []triage.Incident, service, alertType string, limit int) []triage.Incident {
	out := make([]triage.Incident, len(all))
	for i, inc := range all {
		inc.Similarity = score(inc, service, alertType)
		out[i] = inc
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MemStore 内存知识库
type MemStore struct {
	mu        sync.RWMutex
	incidents []triage.Incident
}

// NewMemStore 创建预置种子数据的内存知识库
func NewMemStore() *MemStore {
	return &MemStore{incidents: seedIncidents()}
}

// SearchSimilar 实现 Store
func (s *MemStore) SearchSimilar(ctx context.Context, service, alertType string, limit int) ([]triage.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rank(s.incidents, service, alertType, limit), nil
}

// Add 实现 Store
func (s *MemStore) Add(ctx context.Context, inc triage.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = append(s.incidents, inc)
	return nil
}
