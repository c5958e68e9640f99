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

package incident

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"triage-platform/internal/triage"
	"triage-platform/pkg/config"
	"triage-platform/pkg/errors"
)

const kbKey = "triage:incident_kb"

// RedisStore 基于 Redis Hash 的知识库，多 worker 共享
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 知识库；库为空时写入种子数据
func NewRedisStore(ctx context.Context, cfg config.IncidentStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "连接 Redis failed")
	}
	s := &RedisStore{client: client}
	n, err := client.HLen(ctx, kbKey).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		for _, inc := range seedIncidents() {
			if err := s.Add(ctx, inc); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// SearchSimilar 实现 Store
func (s *RedisStore) SearchSimilar(ctx context.Context, service, alertType string, limit int) ([]triage.Incident, error) {
	fields, err := s.client.HGetAll(ctx, kbKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "读取事件知识库 failed")
	}
	all := make([]triage.Incident, 0, len(fields))
	for _, raw := range fields {
		var inc triage.Incident
		if err := json.Unmarshal([]byte(raw), &inc); err != nil {
			continue
		}
		all = append(all, inc)
	}
	return rank(all, service, alertType, limit), nil
}

// Add 实现 Store
func (s *RedisStore) Add(ctx context.Context, inc triage.Incident) error {
	if inc.ID == "" {
		return errors.Wrap(errors.ErrInvalidArg, "incident id is required")
	}
	raw, err := json.Marshal(inc)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, kbKey, inc.ID, raw).Err()
}

// Close 释放连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}
