package builtin

import (
	"triage-platform/internal/tool"
	"triage-platform/internal/tool/registry"
	"triage-platform/pkg/config"
)

// RegisterBuiltin 将全部诊断工具注册到 ToolRegistry
func RegisterBuiltin(reg *registry.Registry, cfg config.ToolsConfig) {
	if reg == nil {
		return
	}
	reg.Register(NewSearchLogsTool(cfg.ElasticsearchURL))
	reg.Register(NewRecentMessagesTool())
	reg.Register(NewQueryPrometheusTool(cfg.PrometheusURL))
	reg.Register(NewListMetricsTool())
	reg.Register(NewAlertRulesTool())
	reg.Register(NewServiceMetricsTool())
	reg.Register(NewDCGMMetricsTool())
	reg.Register(NewDCGMHistoryTool())
	reg.Register(NewListGPUsTool())
}

// RegisterWith 仅注册给定工具（用于测试或最小装配）
func RegisterWith(reg *registry.Registry, tools ...tool.Tool) {
	if reg == nil {
		return
	}
	for _, t := range tools {
		reg.Register(t)
	}
}
