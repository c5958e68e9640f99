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

// Package guardrail 对拟执行的修复动作做两层安全检查：
// 确定性规则短路在前，模型评估在后，任何异常一律回退为需要人工批准。
package guardrail

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"triage-platform/internal/alert"
	"triage-platform/internal/triage/gateway"
	"triage-platform/pkg/config"
	"triage-platform/pkg/log"
	"triage-platform/pkg/redaction"
)

// 默认高危关键字，出现即强制人工批准
var defaultHighRiskActions = []string{
	"delete",
	"terminate",
	"shutdown",
	"drop_database",
	"force_restart",
	"scale_to_zero",
}

// 默认关键服务清单，任何动作都需要人工批准
var defaultCriticalServices = []string{
	"payment-service",
	"auth-service",
	"database-primary",
	"kafka-broker",
}

const defaultConfidenceFloor = 0.7

// Decision 检查结论
type Decision struct {
	Allowed          bool   `json:"allowed"`
	RequiresApproval bool   `json:"requires_approval"`
	Reason           string `json:"reason"`
	// ModelConsulted 模型层是否被实际调用
	ModelConsulted bool `json:"model_consulted"`
}

// Gate 动作安全门
type Gate struct {
	highRisk        []string
	critical        map[string]bool
	confidenceFloor float64
	gw              gateway.Gateway
	redactor        *redaction.Engine
	disableModel    bool
	logger          *log.Logger
}

// New 创建安全门。gw 为 nil 或 DisableModelLayer 为 true 时只走确定性规则，
// 且第一层放行后直接要求人工批准（缺少模型判断时保守处理）。
func New(cfg config.GuardrailConfig, gw gateway.Gateway, logger *log.Logger) *Gate {
	g := &Gate{
		highRisk:        cfg.HighRiskActions,
		confidenceFloor: cfg.ConfidenceFloor,
		gw:              gw,
		redactor:        redaction.Default(),
		disableModel:    cfg.DisableModelLayer,
		logger:          logger,
	}
	if len(g.highRisk) == 0 {
		g.highRisk = defaultHighRiskActions
	}
	if g.confidenceFloor <= 0 {
		g.confidenceFloor = defaultConfidenceFloor
	}
	services := cfg.CriticalServices
	if len(services) == 0 {
		services = defaultCriticalServices
	}
	g.critical = make(map[string]bool, len(services))
	for _, s := range services {
		g.critical[s] = true
	}
	return g
}

// Validate 评估拟执行动作。severity 用于最终覆盖：critical/high 告警
// 无论模型怎么说都要求人工批准。
func (g *Gate) Validate(ctx context.Context, action, service string, confidence float64, severity alert.Severity) Decision {
	if d, blocked := g.deterministic(action, service, confidence); blocked {
		return d
	}

	if g.disableModel || g.gw == nil {
		// 无模型层时保守处理
		return Decision{
			Allowed:          false,
			RequiresApproval: true,
			Reason:           "model-assisted assessment unavailable, defaulting to approval",
		}
	}

	modelRequires, err := g.assess(ctx, action, service)
	if err != nil {
		if g.logger != nil {
			g.logger.Warn("guardrail 模型评估失败，回退为需要批准", "error", err)
		}
		return Decision{
			Allowed:          false,
			RequiresApproval: true,
			Reason:           fmt.Sprintf("guardrail assessment failed: %v", err),
			ModelConsulted:   true,
		}
	}

	requires := modelRequires || severity.High()
	reason := "action passed all guardrail checks"
	if modelRequires {
		reason = "model assessment requires human approval"
	} else if severity.High() {
		reason = fmt.Sprintf("severity %q overrides auto-approval", severity)
	}
	return Decision{
		Allowed:          !requires,
		RequiresApproval: requires,
		Reason:           reason,
		ModelConsulted:   true,
	}
}

// deterministic 第一层规则，命中即短路，模型永不被调用
func (g *Gate) deterministic(action, service string, confidence float64) (Decision, bool) {
	actionLower := strings.ToLower(action)
	for _, risk := range g.highRisk {
		if strings.Contains(actionLower, risk) {
			return Decision{
				Allowed:          false,
				RequiresApproval: true,
				Reason:           fmt.Sprintf("high-risk action '%s' requires human approval", risk),
			}, true
		}
	}
	if g.critical[service] {
		return Decision{
			Allowed:          false,
			RequiresApproval: true,
			Reason:           fmt.Sprintf("critical service '%s' requires human approval for any action", service),
		}, true
	}
	if confidence < g.confidenceFloor {
		return Decision{
			Allowed:          false,
			RequiresApproval: true,
			Reason:           fmt.Sprintf("confidence %.0f%% below auto-approval threshold (%.0f%%)", confidence*100, g.confidenceFloor*100),
		}, true
	}
	return Decision{}, false
}

// assess 第二层模型评估。动作文本先脱敏再送入模型，
// 模型回答不确定时偏向要求批准。
func (g *Gate) assess(ctx context.Context, action, service string) (bool, error) {
	sanitized := g.redactor.Sanitize(action)
	msgs := []*schema.Message{
		schema.SystemMessage("You are a change-safety reviewer for production infrastructure. " +
			"Judge whether a proposed remediation action is reversible and free of dangerous side effects. " +
			"When uncertain, require approval. Answer with exactly APPROVAL_REQUIRED or AUTO_OK on the first line, then a one-sentence reason."),
		schema.UserMessage(fmt.Sprintf("Service: %s\nProposed action: %s", service, sanitized)),
	}
	resp, err := g.gw.Invoke(ctx, msgs, nil)
	if err != nil {
		return true, err
	}
	answer := strings.ToUpper(resp.Content)
	if strings.Contains(answer, "AUTO_OK") && !strings.Contains(answer, "APPROVAL_REQUIRED") {
		return false, nil
	}
	// 含糊回答一律按需要批准处理
	return true, nil
}
