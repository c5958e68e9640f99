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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	Model           ModelConfig           `mapstructure:"model"`
	Worker          WorkerConfig          `mapstructure:"worker"`
	Engine          EngineConfig          `mapstructure:"engine"`
	Guardrail       GuardrailConfig       `mapstructure:"guardrail"`
	CheckpointStore CheckpointStoreConfig `mapstructure:"checkpoint_store"`
	IncidentStore   IncidentStoreConfig   `mapstructure:"incident_store"`
	Tools           ToolsConfig           `mapstructure:"tools"`
	Log             LogConfig             `mapstructure:"log"`
	Monitoring      MonitoringConfig      `mapstructure:"monitoring"`
	RateLimits      RateLimitsConfig      `mapstructure:"rate_limits"`
}

// ModelConfig LLM 网关配置（OpenAI 兼容端点）
type ModelConfig struct {
	Provider  string  `mapstructure:"provider"`    // openai | qwen（OpenAI 兼容）
	Name      string  `mapstructure:"name"`        // 模型名，如 gpt-4o-mini
	APIKey    string  `mapstructure:"api_key"`     // 支持 ${ENV_VAR} 形式
	BaseURL   string  `mapstructure:"base_url"`    // OpenAI 兼容端点，空则用官方默认
	CostPer1K float64 `mapstructure:"cost_per_1k"` // 每 1K token 成本估算（美元），用于观测
}

// WorkerConfig 告警消费 Worker 配置
type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency"` // 并发消费会话数，<=0 默认 2
	QueueSize   int    `mapstructure:"queue_size"`  // 队列容量，<=0 默认 64
	ID          string `mapstructure:"id"`          // Worker 标识，空则 hostname+pid
}

// EngineConfig 工作流引擎配置
type EngineConfig struct {
	MaxToolRounds int `mapstructure:"max_tool_rounds"` // 每阶段族工具往返上限，<=0 默认 3
}

// GuardrailConfig 护栏配置；空列表使用内置默认
type GuardrailConfig struct {
	HighRiskActions   []string `mapstructure:"high_risk_actions"`
	CriticalServices  []string `mapstructure:"critical_services"`
	ConfidenceFloor   float64  `mapstructure:"confidence_floor"`   // <=0 默认 0.7
	DisableModelLayer bool     `mapstructure:"disable_model_layer"` // true 时只用确定性规则（模型不可用场景）
}

// CheckpointStoreConfig Checkpoint 存储配置
type CheckpointStoreConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
	DSN  string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填
}

// IncidentStoreConfig 历史事故知识库配置
type IncidentStoreConfig struct {
	Type     string `mapstructure:"type"`     // memory | redis
	Addr     string `mapstructure:"addr"`     // Redis 地址，type=redis 时必填
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// ToolsConfig 诊断工具后端端点；空则工具返回确定性合成数据
type ToolsConfig struct {
	PrometheusURL    string `mapstructure:"prometheus_url"`
	ElasticsearchURL string `mapstructure:"elasticsearch_url"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 暴露配置（Worker /metrics 端口）
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// RateLimitsConfig LLM 网关限流配置
type RateLimitsConfig struct {
	LLM LLMRateLimitConfig `mapstructure:"llm"`
}

// LLMRateLimitConfig 网关限流：每秒请求数与并发上限
type LLMRateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetEnvPrefix("TRIAGE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// LoadWorkerConfig 加载 Worker 配置（configs/worker.yaml）
func LoadWorkerConfig() (*Config, error) {
	return LoadConfig("configs/worker.yaml")
}

// Default 返回全内存、无外部依赖的默认配置（CLI 与测试用）
func Default() *Config {
	return &Config{
		Worker:          WorkerConfig{Concurrency: 2, QueueSize: 64},
		Engine:          EngineConfig{MaxToolRounds: 3},
		CheckpointStore: CheckpointStoreConfig{Type: "memory"},
		IncidentStore:   IncidentStoreConfig{Type: "memory"},
		Log:             LogConfig{Level: "info", Format: "json"},
	}
}

// replaceEnvVars 替换配置中 ${ENV_VAR} 形式的密钥
func replaceEnvVars(config *Config) {
	if strings.HasPrefix(config.Model.APIKey, "$") {
		envVar := strings.TrimPrefix(strings.TrimSuffix(config.Model.APIKey, "}"), "${")
		if val := os.Getenv(envVar); val != "" {
			config.Model.APIKey = val
		}
	}
}
