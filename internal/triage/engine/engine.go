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

// Package engine 编排 triage 流水线：七个推理阶段、共享工具执行节点、
// finalize 前的中断点，以及基于检查点的挂起/恢复协议。
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	"triage-platform/internal/alert"
	"triage-platform/internal/incident"
	"triage-platform/internal/triage"
	"triage-platform/internal/triage/checkpoint"
	"triage-platform/internal/triage/gateway"
	"triage-platform/internal/triage/guardrail"
	"triage-platform/internal/triage/observe"
	"triage-platform/internal/triage/results"
	"triage-platform/internal/tool/registry"
	"triage-platform/pkg/errors"
	"triage-platform/pkg/log"
	"triage-platform/pkg/metrics"
	"triage-platform/pkg/tracing"
)

var (
	// ErrCheckpointNotFound resume 时找不到对应的挂起会话
	ErrCheckpointNotFound = errors.Wrap(errors.ErrNotFound, "no suspended session for triage id")
	// ErrAlreadyCompleted resume 一个已经产出终态结果的会话
	ErrAlreadyCompleted = errors.New("triage session already completed")
)

// 单个阶段家族的默认工具回合上限
const defaultMaxToolRounds = 3

// Config 引擎装配参数
type Config struct {
	Gateway     gateway.Gateway
	Registry    *registry.Registry
	Gate        *guardrail.Gate
	Checkpoints checkpoint.Store
	Results     *results.Store
	Incidents   incident.Store
	Observe     *observe.Registry
	Logger      *log.Logger
	// MaxToolRounds 每个阶段家族允许的工具回合数，<=0 取默认值
	MaxToolRounds int
}

// Engine triage 工作流引擎
type Engine struct {
	gw            gateway.Gateway
	registry      *registry.Registry
	gate          *guardrail.Gate
	checkpoints   checkpoint.Store
	results       *results.Store
	incidents     incident.Store
	observe       *observe.Registry
	logger        *log.Logger
	maxToolRounds int
}

// New 创建引擎
func New(cfg Config) *Engine {
	e := &Engine{
		gw:            cfg.Gateway,
		registry:      cfg.Registry,
		gate:          cfg.Gate,
		checkpoints:   cfg.Checkpoints,
		results:       cfg.Results,
		incidents:     cfg.Incidents,
		observe:       cfg.Observe,
		logger:        cfg.Logger,
		maxToolRounds: cfg.MaxToolRounds,
	}
	if e.maxToolRounds <= 0 {
		e.maxToolRounds = defaultMaxToolRounds
	}
	if e.observe == nil {
		e.observe = observe.NewRegistry(0)
	}
	if e.logger == nil {
		e.logger, _ = log.NewLogger(nil)
	}
	return e
}

// toolInfosFor 返回某阶段绑定的工具描述，注册表里不存在的名字跳过
func (e *Engine) toolInfosFor(stage Stage) []*schema.ToolInfo {
	names, ok := stageToolNames[stage]
	if !ok {
		return nil
	}
	infos := make([]*schema.ToolInfo, 0, len(names))
	for _, name := range names {
		if t, ok := e.registry.Get(name); ok {
			infos = append(infos, registry.ToolInfo(t))
		}
	}
	return infos
}

// Run 执行一次 triage。阶段推进到 validate_action 后：
// 仍需批准则保存检查点并以 pending_approval 挂起返回；
// 无需批准则同一调用内直通 finalize，返回 auto_approved。
func (e *Engine) Run(ctx context.Context, triageID string, a alert.Payload) (*triage.Result, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a = a.Normalize()

	ctx, span := tracing.StartTriageSpan(ctx, triageID, a.Service)
	defer span.End()

	e.logger.Info("开始 triage 会话", "triage_id", triageID, "service", a.Service, "severity", a.Severity)

	st := triage.NewState(triageID, a)
	e.executePipeline(ctx, st, StageGatherContext)

	if st.RequiresApproval {
		if err := e.checkpoints.Save(ctx, triageID, st); err != nil {
			e.logger.Error("保存检查点失败", "triage_id", triageID, "error", err)
			res := triage.ResultFromState(st, triage.StatusRejected)
			e.finish(res)
			return res, errors.Wrap(err, "保存检查点 failed")
		}
		e.logger.Info("会话挂起等待人工批准", "triage_id", triageID, "action", st.RecommendedAction)
		res := triage.ResultFromState(st, triage.StatusPendingApproval)
		e.finish(res)
		return res, nil
	}

	// 自动放行路径，直接收尾
	st.Apply(e.stageFinalize(ctx, st, triage.StatusAutoApproved))
	res := triage.ResultFromState(st, triage.StatusAutoApproved)
	now := time.Now().UTC()
	res.CompletedAt = &now
	e.finish(res)
	e.logger.Info("会话自动放行完成", "triage_id", triageID)
	return res, nil
}

// Resume 人工批准后恢复挂起的会话，执行 finalize 并产出终态结果。
// 无检查点返回 ErrCheckpointNotFound，已完成返回 ErrAlreadyCompleted。
func (e *Engine) Resume(ctx context.Context, triageID string) (*triage.Result, error) {
	if prev, err := e.results.Get(triageID); err == nil && prev.CompletedAt != nil {
		return nil, errors.Wrapf(ErrAlreadyCompleted, "triage %s", triageID)
	}

	st, err := e.checkpoints.Load(ctx, triageID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, errors.Wrapf(ErrCheckpointNotFound, "triage %s", triageID)
		}
		return nil, err
	}

	ctx, span := tracing.StartTriageSpan(ctx, triageID, st.Alert.Service)
	defer span.End()

	e.logger.Info("恢复挂起的会话", "triage_id", triageID, "service", st.Alert.Service)

	st.Apply(e.stageFinalize(ctx, st, triage.StatusApproved))
	res := triage.ResultFromState(st, triage.StatusApproved)
	now := time.Now().UTC()
	res.CompletedAt = &now
	e.finish(res)

	// 快照被消费后即删除，重复 resume 由结果存储拦截
	if err := e.checkpoints.Delete(ctx, triageID); err != nil {
		e.logger.Warn("删除检查点失败", "triage_id", triageID, "error", err)
	}
	e.logger.Info("会话批准完成", "triage_id", triageID)
	return res, nil
}

// Reject 人工否决挂起的会话：消费检查点并落一条 rejected 终态结果。
// 与 Resume 相同的前置检查。
func (e *Engine) Reject(ctx context.Context, triageID, reason string) (*triage.Result, error) {
	if prev, err := e.results.Get(triageID); err == nil && prev.CompletedAt != nil {
		return nil, errors.Wrapf(ErrAlreadyCompleted, "triage %s", triageID)
	}

	st, err := e.checkpoints.Load(ctx, triageID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, errors.Wrapf(ErrCheckpointNotFound, "triage %s", triageID)
		}
		return nil, err
	}

	ev := triage.NewEvent(string(StageFinalize),
		fmt.Sprintf("triage rejected for %s", st.Alert.Service))
	if reason != "" {
		ev.Metadata = map[string]any{"reason": reason}
	}
	st.Apply(triage.Update{Events: []triage.Event{ev}})

	res := triage.ResultFromState(st, triage.StatusRejected)
	now := time.Now().UTC()
	res.CompletedAt = &now
	e.finish(res)

	if err := e.checkpoints.Delete(ctx, triageID); err != nil {
		e.logger.Warn("删除检查点失败", "triage_id", triageID, "error", err)
	}
	e.logger.Info("会话被人工否决", "triage_id", triageID, "reason", reason)
	return res, nil
}

// Metrics 返回某次 triage 的阶段指标
func (e *Engine) Metrics(triageID string) []observe.StageMetrics {
	return e.observe.Get(triageID)
}

func (e *Engine) finish(res *triage.Result) {
	e.results.Put(res)
	metrics.TriageTotal.WithLabelValues(string(res.Status)).Inc()
}

// executePipeline 从 from 开始推进流水线，到 finalize 边界为止。
// 每个阶段就地降级，引擎无条件推进；工具回合按阶段家族封顶。
func (e *Engine) executePipeline(ctx context.Context, st *triage.State, from Stage) {
	rounds := make(map[Stage]int)
	cur := from
	for cur != StageFinalize && cur != StageEnd {
		st.Apply(e.runStage(ctx, cur, st))

		calls := pendingToolCalls(st.LastMessage())
		if len(calls) > 0 && isToolStage(cur) {
			if rounds[cur] >= e.maxToolRounds {
				st.Apply(maxRoundsUpdate(cur, calls, e.maxToolRounds))
				cur = pipelineNext[cur]
				continue
			}
			rounds[cur]++
			msgs := e.executeToolCalls(ctx, calls)
			st.Apply(toolResultsUpdate(cur, calls, msgs))
			cur = returnStageFor(calls[0].Function.Name)
			continue
		}
		cur = pipelineNext[cur]
	}
}

// runStage 单个阶段的执行包装：span + 指标跟踪
func (e *Engine) runStage(ctx context.Context, stage Stage, st *triage.State) triage.Update {
	ctx, span := tracing.StartStageSpan(ctx, st.TriageID, string(stage))
	defer span.End()

	tr := e.observe.Track(st.TriageID, string(stage))
	u := e.dispatch(ctx, stage, st, tr)

	// 降级路径在事件里带 Error
	var stageErr error
	for _, ev := range u.Events {
		if ev.Error != "" {
			stageErr = errors.New(ev.Error)
			break
		}
	}
	tr.Done(stageErr)
	return u
}

func (e *Engine) dispatch(ctx context.Context, stage Stage, st *triage.State, tr *observe.Tracker) triage.Update {
	switch stage {
	case StageGatherContext:
		return e.stageGatherContext(ctx, st, tr)
	case StageAnalyzeLogs:
		return e.stageAnalyzeLogs(ctx, st, tr)
	case StageAnalyzeMetrics:
		return e.stageAnalyzeMetrics(ctx, st, tr)
	case StageIncidentRAG:
		return e.stageIncidentRAG(ctx, st, tr)
	case StagePlanRemediation:
		return e.stagePlanRemediation(ctx, st, tr)
	case StageValidateAction:
		return e.stageValidateAction(ctx, st, tr)
	default:
		return degraded(stage, "unknown stage", nil)
	}
}
