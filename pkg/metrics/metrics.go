package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 Worker 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		StageDuration, TriageTotal, TriageFailTotal,
		ToolDuration, LLMTokensTotal,
		QueueDepth, WorkerBusy,
	)
}

// StageDuration 各推理阶段耗时（秒）
var StageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "triage_stage_duration_seconds",
		Help:    "推理阶段耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"stage"},
)

// TriageTotal 会话总数（按终态）
var TriageTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triage_total",
		Help: "Triage 会话总数（按终态）",
	},
	[]string{"status"}, // pending_approval | auto_approved | approved | rejected
)

// TriageFailTotal 阶段降级总数（与 TriageTotal 配合可算降级率）
var TriageFailTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triage_stage_fail_total",
		Help: "阶段降级（fail-closed）总数",
	},
	[]string{"stage"},
)

// ToolDuration 诊断工具调用耗时（秒）
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "triage_tool_duration_seconds",
		Help:    "诊断工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// LLMTokensTotal LLM 调用 token 数（估算值）
var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "triage_llm_tokens_total",
		Help: "LLM 调用 token 总数（估算）",
	},
	[]string{"direction"}, // prompt | completion
)

// QueueDepth 告警队列当前深度
var QueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "triage_queue_depth",
		Help: "告警队列当前深度",
	},
)

// WorkerBusy 当前正在处理的会话数（每 Worker）
var WorkerBusy = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "triage_worker_busy",
		Help: "当前正在处理的会话数",
	},
	[]string{"worker_id"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
