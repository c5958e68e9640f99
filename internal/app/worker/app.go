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

// Package worker 装配告警消费 Worker：LLM 网关、工具注册表、护栏、
// 工作流引擎、告警队列与 HTTP 服务。
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	triagehttp "triage-platform/internal/api/http"
	"triage-platform/internal/incident"
	"triage-platform/internal/tool/builtin"
	"triage-platform/internal/tool/registry"
	"triage-platform/internal/triage/checkpoint"
	"triage-platform/internal/triage/engine"
	"triage-platform/internal/triage/gateway"
	"triage-platform/internal/triage/guardrail"
	"triage-platform/internal/triage/observe"
	"triage-platform/internal/triage/queue"
	"triage-platform/internal/triage/results"
	"triage-platform/pkg/config"
	"triage-platform/pkg/log"
	"triage-platform/pkg/tracing"
)

// App 告警消费 Worker 应用
type App struct {
	config  *config.Config
	logger  *log.Logger
	engine  *engine.Engine
	queue   *queue.Queue
	results *results.Store
	router  *triagehttp.Router
	hertz   *server.Hertz

	pgPool       *pgxpool.Pool
	redisKB      *incident.RedisStore
	otelProvider *sdktrace.TracerProvider
}

// NewApp 按配置装配 Worker 应用
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	logCfg := &log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	appObj := &App{config: cfg, logger: logger}

	// 链路追踪（可选）
	if cfg.Monitoring.Tracing.Enable && cfg.Monitoring.Tracing.ExportEndpoint != "" {
		serviceName := cfg.Monitoring.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "triage-worker"
		}
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    serviceName,
			ExportEndpoint: cfg.Monitoring.Tracing.ExportEndpoint,
			Insecure:       cfg.Monitoring.Tracing.Insecure,
		})
		if err != nil {
			logger.Warn("初始化链路追踪失败，将不上报 trace", "error", err)
		} else {
			appObj.otelProvider = tp
			logger.Info("链路追踪已启用", "service_name", serviceName)
		}
	}

	// LLM 网关
	var gw gateway.Gateway
	if cfg.Model.APIKey != "" {
		cm, err := gateway.NewChatModelGateway(context.Background(), cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("初始化 LLM 网关失败: %w", err)
		}
		gw = cm
		if rl := cfg.RateLimits.LLM; rl.RequestsPerSecond > 0 {
			gw = gateway.NewRateLimited(gw, rl.RequestsPerSecond, rl.Burst, rl.MaxConcurrent)
			logger.Info("LLM 网关限流已启用", "rps", rl.RequestsPerSecond, "max_concurrent", rl.MaxConcurrent)
		}
	} else {
		logger.Warn("未配置 model.api_key，所有阶段将降级为兜底输出")
	}

	// Checkpoint 存储
	var cpStore checkpoint.Store
	switch cfg.CheckpointStore.Type {
	case "postgres":
		pool, err := pgxpool.New(context.Background(), cfg.CheckpointStore.DSN)
		if err != nil {
			return nil, fmt.Errorf("初始化 Checkpoint 存储(postgres) 失败: %w", err)
		}
		appObj.pgPool = pool
		cpStore = checkpoint.NewPgStore(pool)
		logger.Info("Checkpoint 存储使用 PostgreSQL 后端")
	default:
		cpStore = checkpoint.NewMemStore()
	}

	// 历史事故知识库
	var kb incident.Store
	switch cfg.IncidentStore.Type {
	case "redis":
		rs, err := incident.NewRedisStore(context.Background(), cfg.IncidentStore)
		if err != nil {
			return nil, fmt.Errorf("初始化事故知识库(redis) 失败: %w", err)
		}
		appObj.redisKB = rs
		kb = rs
		logger.Info("事故知识库使用 Redis 后端", "addr", cfg.IncidentStore.Addr)
	default:
		kb = incident.NewMemStore()
	}

	// 工具注册表
	reg := registry.New()
	builtin.RegisterBuiltin(reg, cfg.Tools)

	resStore := results.New()
	eng := engine.New(engine.Config{
		Gateway:       gw,
		Registry:      reg,
		Gate:          guardrail.New(cfg.Guardrail, gw, logger),
		Checkpoints:   cpStore,
		Results:       resStore,
		Incidents:     kb,
		Observe:       observe.NewRegistry(cfg.Model.CostPer1K),
		Logger:        logger,
		MaxToolRounds: cfg.Engine.MaxToolRounds,
	})

	q := queue.New(eng, cfg.Worker.Concurrency, cfg.Worker.QueueSize, logger)

	handler := triagehttp.NewHandler(q, eng, resStore, logger)
	appObj.engine = eng
	appObj.queue = q
	appObj.results = resStore
	appObj.router = triagehttp.NewRouter(handler)

	return appObj, nil
}

// Engine 返回工作流引擎（CLI 同步运行用）
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Queue 返回告警队列
func (a *App) Queue() *queue.Queue {
	return a.queue
}

// Start 启动队列消费
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("启动 worker 应用")
	a.queue.Start(ctx)
	return nil
}

// Run 启动 HTTP 服务（阻塞），addr 如 ":8090"
func (a *App) Run(addr string) error {
	a.logger.Info("Worker HTTP 服务启动", "addr", addr)

	// Hertz 日志走 slog 扩展，与应用日志配置对齐
	output := os.Stdout
	if a.config.Log.File != "" {
		f, err := os.OpenFile(a.config.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	switch a.config.Log.Level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	a.hertz = a.router.Build(addr)
	return a.hertz.Run()
}

// Shutdown 优雅关闭：先停 HTTP，再排空队列，最后释放外部连接
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("关闭 worker 应用")

	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			a.logger.Error("关闭 HTTP 服务失败", "error", err)
		}
	}

	a.queue.Stop()

	if a.redisKB != nil {
		if err := a.redisKB.Close(); err != nil {
			a.logger.Error("关闭事故知识库失败", "error", err)
		}
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}

	a.logger.Info("worker 应用关闭成功")
	return nil
}
