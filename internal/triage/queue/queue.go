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

package queue

import (
	"context"
	"fmt"
	"sync"

	"triage-platform/internal/alert"
	"triage-platform/internal/triage/engine"
	"triage-platform/pkg/errors"
	"triage-platform/pkg/log"
	"triage-platform/pkg/metrics"
)

// ErrQueueFull 队列已满，告警被拒收
var ErrQueueFull = errors.New("alert queue full")

// ErrStopped 队列已停止，不再接收新告警
var ErrStopped = errors.New("alert queue stopped")

// Task 待处理的告警任务
type Task struct {
	TriageID string
	Alert    alert.Payload
}

// Queue 告警消费队列：固定容量缓冲 + N 个 Worker 并发消费，
// 每个 Worker 独立驱动一次完整的 triage 会话。
type Queue struct {
	tasks       chan Task
	eng         *engine.Engine
	logger      *log.Logger
	concurrency int

	mu      sync.Mutex
	stopped bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New 创建队列。concurrency<=0 取 2，size<=0 取 64。
func New(eng *engine.Engine, concurrency, size int, logger *log.Logger) *Queue {
	if concurrency <= 0 {
		concurrency = 2
	}
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger, _ = log.NewLogger(nil)
	}
	return &Queue{
		tasks:       make(chan Task, size),
		eng:         eng,
		logger:      logger,
		concurrency: concurrency,
		stopCh:      make(chan struct{}),
	}
}

// Start 启动消费 Worker；ctx 透传给每次会话执行，不用于停止
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)
		go q.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
	q.logger.Info("告警队列已启动", "concurrency", q.concurrency, "capacity", cap(q.tasks))
}

// Submit 投递一条告警。队列满时立即返回 ErrQueueFull，不阻塞调用方。
func (q *Queue) Submit(t Task) error {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return errors.Wrapf(ErrStopped, "triage %s", t.TriageID)
	}

	select {
	case q.tasks <- t:
		metrics.QueueDepth.Set(float64(len(q.tasks)))
		return nil
	default:
		return errors.Wrapf(ErrQueueFull, "triage %s", t.TriageID)
	}
}

// Depth 当前排队任务数
func (q *Queue) Depth() int {
	return len(q.tasks)
}

// Stop 优雅停止：先拒收新告警，排空已入队的任务后等待 Worker 全部退出
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
	q.logger.Info("告警队列已停止")
}

func (q *Queue) worker(ctx context.Context, id string) {
	defer q.wg.Done()
	for {
		select {
		case t := <-q.tasks:
			q.handle(ctx, id, t)
		case <-q.stopCh:
			// 停止时排空剩余任务，保证已接收的告警不丢
			for {
				select {
				case t := <-q.tasks:
					q.handle(ctx, id, t)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) handle(ctx context.Context, workerID string, t Task) {
	metrics.QueueDepth.Set(float64(len(q.tasks)))
	metrics.WorkerBusy.WithLabelValues(workerID).Inc()
	defer metrics.WorkerBusy.WithLabelValues(workerID).Dec()

	res, err := q.eng.Run(ctx, t.TriageID, t.Alert)
	if err != nil {
		q.logger.Error("会话执行失败", "triage_id", t.TriageID, "worker", workerID, "error", err)
		return
	}
	q.logger.Info("会话处理完成",
		"triage_id", t.TriageID, "worker", workerID,
		"status", res.Status, "requires_approval", res.RequiresApproval)
}
