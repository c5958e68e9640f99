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

// Package checkpoint 持久化挂起会话的完整状态快照。
// 快照是整份序列化状态而非执行游标，resume 读回后可丢弃。
package checkpoint

import (
	"context"
	"encoding/json"
	"sync"

	"triage-platform/internal/triage"
	"triage-platform/pkg/errors"
)

// ErrNotFound 指定 triage_id 没有检查点
var ErrNotFound = errors.ErrNotFound

// Store 检查点存储接口，按 triage_id 分区，可安全并发访问
type Store interface {
	Save(ctx context.Context, id string, state *triage.State) error
	Load(ctx context.Context, id string) (*triage.State, error)
	Delete(ctx context.Context, id string) error
}

// memStore 内存实现，保存序列化后的快照
type memStore struct {
	mu   sync.RWMutex
	byID map[string][]byte
}

// NewMemStore 创建内存版检查点存储
func NewMemStore() Store {
	return &memStore{byID: make(map[string][]byte)}
}

func (s *memStore) Save(ctx context.Context, id string, state *triage.State) error {
	if id == "" || state == nil {
		return errors.Wrap(errors.ErrInvalidArg, "checkpoint id and state are required")
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "序列化检查点 failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id] = raw
	return nil
}

func (s *memStore) Load(ctx context.Context, id string) (*triage.State, error) {
	s.mu.RLock()
	raw, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "checkpoint %s", id)
	}
	var state triage.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, errors.Wrap(err, "反序列化检查点 failed")
	}
	return &state, nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}
