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

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"

	"triage-platform/internal/triage"
	"triage-platform/internal/triage/observe"
	"triage-platform/pkg/errors"
)

// 阶段函数契约：(state) → 局部更新。任何内部错误就地捕获并降级，
// 绝不越过阶段边界抛出，引擎无条件推进。

// degraded 统一的降级路径：兜底值 + 记录失败原因的事件
func degraded(stage Stage, reason string, fill func(*triage.Update)) triage.Update {
	ev := triage.NewEvent(string(stage), "stage degraded to fallback")
	ev.Error = reason
	u := triage.Update{Events: []triage.Event{ev}}
	if fill != nil {
		fill(&u)
	}
	return u
}

// toolRequestUpdate 模型发起 tool-call 时的局部更新：只追加响应消息和事件
func toolRequestUpdate(stage Stage, resp *schema.Message) triage.Update {
	names := make([]string, len(resp.ToolCalls))
	for i, tc := range resp.ToolCalls {
		names[i] = tc.Function.Name
	}
	ev := triage.NewEvent(string(stage), fmt.Sprintf("requested tools: %s", strings.Join(names, ", ")))
	ev.ToolCalls = names
	return triage.Update{
		Messages: []*schema.Message{resp},
		Events:   []triage.Event{ev},
	}
}

// invokeWithHistory 以 [system] + 会话历史 + [指令] 调用模型。
// 网关未配置时直接报错，由各阶段走降级路径。
func (e *Engine) invokeWithHistory(ctx context.Context, st *triage.State, stage Stage, system, instruction string, tr *observe.Tracker) (*schema.Message, error) {
	if e.gw == nil {
		return nil, errors.New("llm gateway not configured")
	}
	msgs := make([]*schema.Message, 0, len(st.Messages)+2)
	msgs = append(msgs, schema.SystemMessage(system))
	msgs = append(msgs, st.Messages...)
	msgs = append(msgs, schema.UserMessage(instruction))

	resp, err := e.gw.Invoke(ctx, msgs, e.toolInfosFor(stage))
	if err != nil {
		return nil, err
	}
	if tr != nil {
		var prompt strings.Builder
		for _, m := range msgs {
			prompt.WriteString(m.Content)
		}
		tr.TrackTokens(prompt.String(), resp.Content)
		tr.AddToolCalls(len(resp.ToolCalls))
	}
	return resp, nil
}

// stageGatherContext 初始上下文收集。告警详情随指令一并交给模型，
// 由模型决定调用哪些环境探查工具。
func (e *Engine) stageGatherContext(ctx context.Context, st *triage.State, tr *observe.Tracker) triage.Update {
	alertJSON, _ := json.Marshal(st.Alert)
	system := "You are a cluster context agent. Gather the initial context needed to triage an alert.\n" +
		"Strategy: for GPU alerts call list_dcgm_gpus first; for service alerts check get_recent_messages for correlated events; " +
		"get_alert_rules explains what condition fired. Collect what downstream analysis agents will need."
	instruction := fmt.Sprintf("Gather context for this alert:\n- Service: %s\n- Alert Type: %s\n- Severity: %s\n- Full Alert: %s\n\nCall the appropriate tools, or summarize the context if no tool is needed.",
		st.Alert.Service, st.Alert.AlertType, st.Alert.Severity, alertJSON)

	resp, err := e.invokeWithHistory(ctx, st, StageGatherContext, system, instruction, tr)
	if err != nil {
		return degraded(StageGatherContext, fmt.Sprintf("context gathering failed: %v", err), nil)
	}
	if len(resp.ToolCalls) > 0 {
		return toolRequestUpdate(StageGatherContext, resp)
	}
	ev := triage.NewEvent(string(StageGatherContext), fmt.Sprintf("gathered context for %s alert", st.Alert.Service))
	return triage.Update{
		Messages: []*schema.Message{resp},
		Events:   []triage.Event{ev},
	}
}

// stageAnalyzeLogs 日志分析。无 tool-call 时响应正文即为 logs_summary。
func (e *Engine) stageAnalyzeLogs(ctx context.Context, st *triage.State, tr *observe.Tracker) triage.Update {
	system := fmt.Sprintf("You are an SRE agent analyzing logs for the service '%s'.\n"+
		"Look for error patterns: stack traces, segmentation faults, XID errors, driver failures, connection exhaustion. "+
		"Use the search_logs tool when the alert alone is not enough. When you find issues, include copy-paste shell commands the on-call engineer can run.",
		st.Alert.Service)
	instruction := fmt.Sprintf("Analyze the logs for %s to find the root cause of the %s alert.", st.Alert.Service, st.Alert.AlertType)
	if len(st.Messages) > 0 {
		instruction = fmt.Sprintf("Based on the investigation so far, analyze the logs for %s to find the root cause.", st.Alert.Service)
	}

	resp, err := e.invokeWithHistory(ctx, st, StageAnalyzeLogs, system, instruction, tr)
	if err != nil {
		return degraded(StageAnalyzeLogs, fmt.Sprintf("log analysis failed: %v", err), func(u *triage.Update) {
			u.LogsSummary = triage.Str("Error analyzing logs")
		})
	}
	if len(resp.ToolCalls) > 0 {
		return toolRequestUpdate(StageAnalyzeLogs, resp)
	}

	summary := clip(resp.Content, 2000)
	if summary == "" {
		summary = "Log analysis completed. See trace for details."
	}
	ev := triage.NewEvent(string(StageAnalyzeLogs), "completed log analysis")
	return triage.Update{
		LogsSummary: triage.Str(summary),
		Messages:    []*schema.Message{resp},
		Events:      []triage.Event{ev},
	}
}

// stageAnalyzeMetrics 指标分析。异常清单由告警快照的基线偏移确定性计算，
// 模型正文仅作为 metrics_summary。
func (e *Engine) stageAnalyzeMetrics(ctx context.Context, st *triage.State, tr *observe.Tracker) triage.Update {
	system := fmt.Sprintf("You are an observability agent analyzing metrics for the service '%s'.\n"+
		"Prometheus scrapes every 15s and collects DCGM GPU metrics. Watch for CPU spikes, memory leaks, thermal throttling and ECC error growth. "+
		"Use get_service_metrics or the DCGM tools when you need more data. Include copy-paste commands with any diagnosis.",
		st.Alert.Service)
	instruction := fmt.Sprintf("Analyze the metrics for %s to identify anomalies behind the %s alert.", st.Alert.Service, st.Alert.AlertType)

	resp, err := e.invokeWithHistory(ctx, st, StageAnalyzeMetrics, system, instruction, tr)
	if err != nil {
		return degraded(StageAnalyzeMetrics, fmt.Sprintf("metrics analysis failed: %v", err), func(u *triage.Update) {
			u.MetricsSummary = triage.Str("Error fetching metrics")
			u.Anomalies = detectAnomalies(st)
		})
	}
	if len(resp.ToolCalls) > 0 {
		return toolRequestUpdate(StageAnalyzeMetrics, resp)
	}

	summary := clip(resp.Content, 2000)
	if summary == "" {
		summary = "Metrics analysis completed. See trace for details."
	}
	anomalies := detectAnomalies(st)
	ev := triage.NewEvent(string(StageAnalyzeMetrics), fmt.Sprintf("completed metrics analysis, %d anomalies", len(anomalies)))
	return triage.Update{
		MetricsSummary: triage.Str(summary),
		Anomalies:      anomalies,
		Messages:       []*schema.Message{resp},
		Events:         []triage.Event{ev},
	}
}

// detectAnomalies 从告警指标快照推导异常清单，偏移 2 倍以上才计入
func detectAnomalies(st *triage.State) []string {
	var out []string
	for _, d := range st.Alert.MetricSnapshot.Deviations() {
		if d.Ratio >= 2 {
			out = append(out, fmt.Sprintf("%s at %.1fx baseline (%.2f vs %.2f)", d.Metric, d.Ratio, d.Current, d.Baseline))
		}
	}
	return out
}

// stageIncidentRAG 相似历史事件检索，检索结果交给模型提炼经验
func (e *Engine) stageIncidentRAG(ctx context.Context, st *triage.State, tr *observe.Tracker) triage.Update {
	incidents, err := e.incidents.SearchSimilar(ctx, st.Alert.Service, string(st.Alert.AlertType), 3)
	if err != nil {
		return degraded(StageIncidentRAG, fmt.Sprintf("incident search failed: %v", err), func(u *triage.Update) {
			u.SimilarIncidents = []triage.Incident{}
		})
	}

	var sb strings.Builder
	for _, inc := range incidents {
		fmt.Fprintf(&sb, "- %s (similarity %.0f%%): %s\n", inc.ID, inc.Similarity*100, inc.Resolution)
	}
	system := "You are a DevOps expert reviewing past incidents similar to the current alert. " +
		"Identify recurring patterns, pick the resolution most applicable now, and note lessons learned. Think step by step."
	instruction := fmt.Sprintf("Current alert: %s on %s.\nDetected anomalies: %s\n\nSimilar past incidents:\n%s",
		st.Alert.AlertType, st.Alert.Service, strings.Join(st.Anomalies, "; "), sb.String())

	ev := triage.NewEvent(string(StageIncidentRAG), fmt.Sprintf("found %d similar past incidents", len(incidents)))
	if len(incidents) > 0 {
		ev.Metadata = map[string]any{"top_similarity": incidents[0].Similarity}
	}

	resp, err := e.invokeWithHistory(ctx, st, StageIncidentRAG, system, instruction, tr)
	if err != nil {
		// 检索结果仍然保留，只丢掉模型点评
		ev.Error = fmt.Sprintf("incident reasoning unavailable: %v", err)
		return triage.Update{
			SimilarIncidents: incidents,
			Events:           []triage.Event{ev},
		}
	}
	return triage.Update{
		SimilarIncidents: incidents,
		Messages:         []*schema.Message{resp},
		Events:           []triage.Event{ev},
	}
}

// stagePlanRemediation 汇总前序分析，产出假设、动作与置信度
func (e *Engine) stagePlanRemediation(ctx context.Context, st *triage.State, tr *observe.Tracker) triage.Update {
	logs := st.LogsSummary
	if logs == "" {
		logs = "No log analysis available"
	}
	metrics := st.MetricsSummary
	if metrics == "" {
		metrics = "No metrics analysis available"
	}
	system := "You are a remediation planner. Based on the analysis, propose exactly:\n" +
		"Hypothesis: <root cause in one sentence>\n" +
		"Action: <one specific remediation step>\n" +
		"Confidence: <0-100%>"
	instruction := fmt.Sprintf("Analysis for %s:\n\nLogs: %s\n\nMetrics: %s\n\nSimilar past incidents: %d",
		st.Alert.Service, logs, metrics, len(st.SimilarIncidents))

	resp, err := e.invokeWithHistory(ctx, st, StagePlanRemediation, system, instruction, tr)
	if err != nil {
		return degraded(StagePlanRemediation, fmt.Sprintf("planning failed: %v", err), func(u *triage.Update) {
			u.Hypothesis = triage.Str("Service degradation")
			u.RecommendedAction = triage.Str(fmt.Sprintf("Scale %s", st.Alert.Service))
			u.Confidence = triage.Float(0.5)
		})
	}

	hypothesis := extractField(resp.Content, "hypothesis", "Unknown")
	action := extractField(resp.Content, "action", "Investigate")
	confidence := extractConfidence(resp.Content, 0.75)

	ev := triage.NewEvent(string(StagePlanRemediation),
		fmt.Sprintf("proposed: %s (confidence %.0f%%)", clip(action, 100), confidence*100))
	return triage.Update{
		Hypothesis:        triage.Str(hypothesis),
		RecommendedAction: triage.Str(action),
		Confidence:        triage.Float(confidence),
		Messages:          []*schema.Message{resp},
		Events:            []triage.Event{ev},
	}
}

// stageValidateAction 调用 Guardrail 决定是否需要人工批准
func (e *Engine) stageValidateAction(ctx context.Context, st *triage.State, tr *observe.Tracker) triage.Update {
	action := st.RecommendedAction
	if action == "" {
		action = "No action"
	}
	decision := e.gate.Validate(ctx, action, st.Alert.Service, st.Confidence, st.Alert.Severity)

	ev := triage.NewEvent(string(StageValidateAction),
		fmt.Sprintf("validation complete, requires approval: %v", decision.RequiresApproval))
	ev.Metadata = map[string]any{
		"reason":          decision.Reason,
		"model_consulted": decision.ModelConsulted,
	}
	return triage.Update{
		RequiresApproval: triage.Bool(decision.RequiresApproval),
		Events:           []triage.Event{ev},
	}
}

// stageFinalize 收尾，只追加完成事件
func (e *Engine) stageFinalize(ctx context.Context, st *triage.State, status triage.Status) triage.Update {
	ev := triage.NewEvent(string(StageFinalize),
		fmt.Sprintf("triage complete for %s, status: %s", st.Alert.Service, status))
	ev.Metadata = map[string]any{
		"action":     st.RecommendedAction,
		"confidence": st.Confidence,
	}
	return triage.Update{Events: []triage.Event{ev}}
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// extractField 从 "Key: value" 行提取 value
func extractField(text, key, fallback string) string {
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, key) {
			continue
		}
		if _, after, ok := strings.Cut(line, ":"); ok {
			v := strings.TrimSpace(strings.Trim(strings.TrimSpace(after), "*"))
			if v != "" {
				return v
			}
		}
	}
	return fallback
}

// extractConfidence 解析 "Confidence: 85%" 一类的行，结果落在 [0,1]
func extractConfidence(text string, fallback float64) float64 {
	raw := extractField(text, "confidence", "")
	if raw == "" {
		return fallback
	}
	raw = strings.TrimSpace(strings.TrimSuffix(strings.Fields(raw)[0], "%"))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	if v > 1 {
		v = v / 100
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}
