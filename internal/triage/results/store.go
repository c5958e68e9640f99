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

// Package results 保存 triage 会话的终态结果，按 triage_id 分区并发安全。
package results

import (
	"sort"
	"sync"

	"triage-platform/internal/triage"
	"triage-platform/pkg/errors"
)

// Store 结果存储
type Store struct {
	mu   sync.RWMutex
	byID map[string]*triage.Result
}

// New 创建结果存储
func New() *Store {
	return &Store{byID: make(map[string]*triage.Result)}
}

// Put 写入或覆盖结果
func (s *Store) Put(r *triage.Result) {
	if r == nil || r.TriageID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[r.TriageID] = cloneResult(r)
}

// Get 按 triage_id 读取
func (s *Store) Get(id string) (*triage.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "triage result %s", id)
	}
	return cloneResult(r), nil
}

// List 返回全部结果，按创建时间倒序
func (s *Store) List() []*triage.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*triage.Result, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, cloneResult(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func cloneResult(r *triage.Result) *triage.Result {
	out := *r
	out.Anomalies = append([]string(nil), r.Anomalies...)
	out.SimilarIncidents = append([]triage.Incident(nil), r.SimilarIncidents...)
	out.Events = append([]triage.Event(nil), r.Events...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
