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

package checkpoint

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"triage-platform/internal/triage"
	"triage-platform/pkg/errors"
)

// PgStore PostgreSQL 实现，多进程共享；需先建 triage_checkpoints 表：
//
//	CREATE TABLE triage_checkpoints (
//	    triage_id  TEXT PRIMARY KEY,
//	    state      JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 创建基于 PostgreSQL 的检查点存储
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Save 实现 Store，按 triage_id upsert
func (s *PgStore) Save(ctx context.Context, id string, state *triage.State) error {
	if id == "" || state == nil {
		return errors.Wrap(errors.ErrInvalidArg, "checkpoint id and state are required")
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "序列化检查点 failed")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO triage_checkpoints (triage_id, state, created_at, updated_at)
		 VALUES ($1, $2, now(), now())
		 ON CONFLICT (triage_id) DO UPDATE SET
		   state = EXCLUDED.state,
		   updated_at = now()`,
		id, raw,
	)
	return err
}

// Load 实现 Store
func (s *PgStore) Load(ctx context.Context, id string) (*triage.State, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM triage_checkpoints WHERE triage_id = $1`, id,
	).Scan(&raw)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "checkpoint %s", id)
		}
		return nil, err
	}
	var state triage.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, errors.Wrap(err, "反序列化检查点 failed")
	}
	return &state, nil
}

// Delete 实现 Store
func (s *PgStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM triage_checkpoints WHERE triage_id = $1`, id)
	return err
}
