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
	"github.com/cloudwego/eino/schema"
)

// Stage 流水线阶段
type Stage string

const (
	StageGatherContext   Stage = "gather_context"
	StageAnalyzeLogs     Stage = "analyze_logs"
	StageAnalyzeMetrics  Stage = "analyze_metrics"
	StageIncidentRAG     Stage = "incident_rag"
	StagePlanRemediation Stage = "plan_remediation"
	StageValidateAction  Stage = "validate_action"
	StageFinalize        Stage = "finalize"
	StageEnd             Stage = "end"
)

// pipelineNext 固定的流水线顺序
var pipelineNext = map[Stage]Stage{
	StageGatherContext:   StageAnalyzeLogs,
	StageAnalyzeLogs:     StageAnalyzeMetrics,
	StageAnalyzeMetrics:  StageIncidentRAG,
	StageIncidentRAG:     StagePlanRemediation,
	StagePlanRemediation: StageValidateAction,
	StageValidateAction:  StageFinalize,
	StageFinalize:        StageEnd,
}

// stageToolNames 各阶段绑定的工具子集；未列出的阶段不带工具
var stageToolNames = map[Stage][]string{
	StageGatherContext:  {"list_dcgm_gpus", "get_recent_messages", "list_metrics", "get_alert_rules"},
	StageAnalyzeLogs:    {"search_logs", "get_recent_messages", "query_prometheus", "get_alert_rules"},
	StageAnalyzeMetrics: {"get_service_metrics", "get_dcgm_metrics", "get_dcgm_history", "query_prometheus"},
}

// toolReturnStage 工具执行后按发起工具名回到所属阶段
var toolReturnStage = map[string]Stage{
	"list_dcgm_gpus":      StageGatherContext,
	"list_metrics":        StageGatherContext,
	"get_alert_rules":     StageGatherContext,
	"search_logs":         StageAnalyzeLogs,
	"get_recent_messages": StageAnalyzeLogs,
	"query_prometheus":    StageAnalyzeMetrics,
	"get_service_metrics": StageAnalyzeMetrics,
	"get_dcgm_metrics":    StageAnalyzeMetrics,
	"get_dcgm_history":    StageAnalyzeMetrics,
}

// 未知工具名回退的阶段
const defaultReturnStage = StageAnalyzeLogs

// isToolStage 阶段是否可发起工具调用
func isToolStage(s Stage) bool {
	_, ok := stageToolNames[s]
	return ok
}

// returnStageFor 决定工具结果回到哪个阶段
func returnStageFor(toolName string) Stage {
	if s, ok := toolReturnStage[toolName]; ok {
		return s
	}
	return defaultReturnStage
}

// pendingToolCalls 最后一条消息携带的 tool-call 请求，没有则为 nil
func pendingToolCalls(last *schema.Message) []schema.ToolCall {
	if last == nil || last.Role != schema.Assistant || len(last.ToolCalls) == 0 {
		return nil
	}
	return last.ToolCalls
}
