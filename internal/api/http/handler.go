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

package http

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"

	"triage-platform/internal/alert"
	"triage-platform/internal/triage/engine"
	"triage-platform/internal/triage/queue"
	"triage-platform/internal/triage/results"
	"triage-platform/pkg/errors"
	"triage-platform/pkg/log"
	"triage-platform/pkg/metrics"
)

// Handler HTTP 处理器：告警接收、会话查询与人工批准
type Handler struct {
	queue   *queue.Queue
	eng     *engine.Engine
	results *results.Store
	gen     *alert.Generator
	logger  *log.Logger
}

// NewHandler 创建处理器
func NewHandler(q *queue.Queue, eng *engine.Engine, res *results.Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger, _ = log.NewLogger(nil)
	}
	return &Handler{
		queue:   q,
		eng:     eng,
		results: res,
		gen:     alert.NewGenerator(0),
		logger:  logger,
	}
}

// HealthCheck GET /healthz
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]string{"status": "ok"})
}

// Metrics GET /metrics，Prometheus 文本格式
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// SubmitAlert POST /api/alerts，接收监控系统上报的告警并入队
func (h *Handler) SubmitAlert(c context.Context, ctx *app.RequestContext) {
	var payload alert.Payload
	if err := ctx.BindJSON(&payload); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid alert payload"})
		return
	}
	if err := payload.Validate(); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.enqueue(ctx, payload)
}

// syntheticRequest POST /api/alerts/synthetic 请求体；两个字段都可为空
type syntheticRequest struct {
	Service   string `json:"service"`
	AlertType string `json:"alert_type"`
}

// SubmitSyntheticAlert POST /api/alerts/synthetic，生成一条合成告警并入队（演示/联调）
func (h *Handler) SubmitSyntheticAlert(c context.Context, ctx *app.RequestContext) {
	var req syntheticRequest
	// 空请求体也接受，全部随机
	_ = ctx.BindJSON(&req)

	payload := h.gen.Generate(req.Service, alert.AlertType(req.AlertType))
	h.enqueue(ctx, payload)
}

func (h *Handler) enqueue(ctx *app.RequestContext, payload alert.Payload) {
	triageID := uuid.NewString()
	if err := h.queue.Submit(queue.Task{TriageID: triageID, Alert: payload}); err != nil {
		status := consts.StatusInternalServerError
		if errors.Is(err, queue.ErrQueueFull) {
			status = consts.StatusTooManyRequests
		}
		ctx.JSON(status, map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(consts.StatusAccepted, map[string]any{
		"triage_id": triageID,
		"alert_id":  payload.ID,
		"service":   payload.Service,
		"severity":  payload.Severity,
	})
}

// GetTriage GET /api/triages/:id
func (h *Handler) GetTriage(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	res, err := h.results.Get(id)
	if err != nil {
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": fmt.Sprintf("triage %s not found", id)})
		return
	}
	ctx.JSON(consts.StatusOK, res)
}

// ListTriages GET /api/triages
func (h *Handler) ListTriages(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]any{"triages": h.results.List()})
}

// ApproveTriage POST /api/triages/:id/approve，人工批准后恢复挂起的会话
func (h *Handler) ApproveTriage(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	res, err := h.eng.Resume(c, id)
	if err != nil {
		h.respondResumeError(ctx, id, err)
		return
	}
	ctx.JSON(consts.StatusOK, res)
}

// rejectRequest POST /api/triages/:id/reject 请求体
type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectTriage POST /api/triages/:id/reject，人工否决挂起的会话
func (h *Handler) RejectTriage(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	var req rejectRequest
	_ = ctx.BindJSON(&req)

	res, err := h.eng.Reject(c, id, req.Reason)
	if err != nil {
		h.respondResumeError(ctx, id, err)
		return
	}
	ctx.JSON(consts.StatusOK, res)
}

// TriageMetrics GET /api/triages/:id/metrics，单次会话的阶段级观测数据
func (h *Handler) TriageMetrics(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	ms := h.eng.Metrics(id)
	if len(ms) == 0 {
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": fmt.Sprintf("no metrics for triage %s", id)})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"triage_id": id, "stages": ms})
}

func (h *Handler) respondResumeError(ctx *app.RequestContext, id string, err error) {
	switch {
	case errors.Is(err, engine.ErrCheckpointNotFound):
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": fmt.Sprintf("no suspended session for triage %s", id)})
	case errors.Is(err, engine.ErrAlreadyCompleted):
		ctx.JSON(consts.StatusConflict, map[string]string{"error": fmt.Sprintf("triage %s already completed", id)})
	default:
		h.logger.Error("恢复会话失败", "triage_id", id, "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
