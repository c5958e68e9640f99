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

// triagectl 本地演示入口：生成一条合成告警，在内存栈上同步执行完整的
// triage 流水线并打印事件轨迹。挂起的会话可用 -auto-approve 直接批准。
// 使用：TRIAGE_MODEL_API_KEY=... go run ./cmd/triagectl -service payment-service -type latency_spike
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"triage-platform/internal/alert"
	"triage-platform/internal/incident"
	"triage-platform/internal/tool/builtin"
	"triage-platform/internal/tool/registry"
	"triage-platform/internal/triage"
	"triage-platform/internal/triage/checkpoint"
	"triage-platform/internal/triage/engine"
	"triage-platform/internal/triage/gateway"
	"triage-platform/internal/triage/guardrail"
	"triage-platform/internal/triage/observe"
	"triage-platform/internal/triage/results"
	"triage-platform/pkg/config"
	triagelog "triage-platform/pkg/log"
)

func main() {
	service := flag.String("service", "", "目标服务，空则随机")
	alertType := flag.String("type", "", "告警类型（latency_spike|error_rate_spike|cpu_anomaly|memory_anomaly），空则随机")
	seed := flag.Int64("seed", 0, "合成告警随机种子，0 则取当前时间")
	autoApprove := flag.Bool("auto-approve", false, "挂起等待批准的会话直接批准")
	model := flag.String("model", envOr("TRIAGE_MODEL_NAME", "gpt-4o-mini"), "模型名")
	baseURL := flag.String("base-url", os.Getenv("TRIAGE_MODEL_BASE_URL"), "OpenAI 兼容端点")
	flag.Parse()

	apiKey := os.Getenv("TRIAGE_MODEL_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	logger, _ := triagelog.NewLogger(&triagelog.Config{Level: "warn", Format: "text"})
	ctx := context.Background()

	var gw gateway.Gateway
	if apiKey != "" {
		cm, err := gateway.NewChatModelGateway(ctx, config.ModelConfig{
			Name:    *model,
			APIKey:  apiKey,
			BaseURL: *baseURL,
		})
		if err != nil {
			log.Fatalf("初始化 LLM 网关失败: %v", err)
		}
		gw = cm
	} else {
		fmt.Println("警告: 未设置 TRIAGE_MODEL_API_KEY，所有阶段将降级为兜底输出")
	}

	reg := registry.New()
	builtin.RegisterBuiltin(reg, config.ToolsConfig{})

	eng := engine.New(engine.Config{
		Gateway:     gw,
		Registry:    reg,
		Gate:        guardrail.New(config.GuardrailConfig{}, gw, logger),
		Checkpoints: checkpoint.NewMemStore(),
		Results:     results.New(),
		Incidents:   incident.NewMemStore(),
		Observe:     observe.NewRegistry(0.002),
		Logger:      logger,
	})

	payload := alert.NewGenerator(*seed).Generate(*service, alert.AlertType(*alertType))
	fmt.Printf("=== 告警 ===\n  service=%s  type=%s  severity=%s\n\n",
		payload.Service, payload.AlertType, payload.Severity)

	triageID := uuid.NewString()
	res, err := eng.Run(ctx, triageID, payload)
	if err != nil {
		log.Fatalf("triage 执行失败: %v", err)
	}

	if res.Status == triage.StatusPendingApproval && *autoApprove {
		fmt.Println("会话挂起等待批准，-auto-approve 已设置，直接批准")
		res, err = eng.Resume(ctx, triageID)
		if err != nil {
			log.Fatalf("resume 失败: %v", err)
		}
	}

	printResult(res)
	printStageMetrics(eng.Metrics(triageID))
}

func printResult(res *triage.Result) {
	fmt.Printf("=== 结果 ===\n")
	fmt.Printf("  triage_id:  %s\n", res.TriageID)
	fmt.Printf("  status:     %s\n", res.Status)
	fmt.Printf("  hypothesis: %s\n", res.Hypothesis)
	fmt.Printf("  action:     %s\n", res.RecommendedAction)
	fmt.Printf("  confidence: %.0f%%\n", res.Confidence*100)
	fmt.Printf("  requires_approval: %v\n", res.RequiresApproval)
	if len(res.Anomalies) > 0 {
		fmt.Printf("  anomalies:\n")
		for _, a := range res.Anomalies {
			fmt.Printf("    - %s\n", a)
		}
	}
	if len(res.SimilarIncidents) > 0 {
		fmt.Printf("  similar incidents:\n")
		for _, inc := range res.SimilarIncidents {
			fmt.Printf("    - %s (%.0f%%): %s\n", inc.ID, inc.Similarity*100, inc.Resolution)
		}
	}

	fmt.Printf("\n=== 事件轨迹 ===\n")
	for _, ev := range res.Events {
		line := fmt.Sprintf("  [%s] %-16s %s", ev.Timestamp.Format("15:04:05.000"), ev.Stage, ev.Summary)
		if ev.Error != "" {
			line += fmt.Sprintf("  (error: %s)", ev.Error)
		}
		fmt.Println(line)
	}
}

func printStageMetrics(ms []observe.StageMetrics) {
	if len(ms) == 0 {
		return
	}
	fmt.Printf("\n=== 阶段指标 ===\n")
	var totalTokens int
	var totalCost float64
	for _, m := range ms {
		fmt.Printf("  %-16s %8.0fms  tokens=%-5d tools=%d\n",
			m.Stage, float64(m.Duration.Milliseconds()), m.TotalTokens, m.ToolCallCount)
		totalTokens += m.TotalTokens
		totalCost += m.CostUSD
	}
	fmt.Printf("  total tokens=%d cost=$%.4f\n", totalTokens, totalCost)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
