// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartTriageSpan 开始一次 triage 会话 span
func StartTriageSpan(ctx context.Context, triageID, service string) (context.Context, trace.Span) {
	tracer := otel.Tracer("triage-platform")
	ctx, span := tracer.Start(ctx, "triage.run",
		trace.WithAttributes(
			attribute.String("triage.id", triageID),
			attribute.String("alert.service", service),
		),
	)
	return ctx, span
}

// StartStageSpan 开始阶段执行 span
func StartStageSpan(ctx context.Context, triageID, stage string) (context.Context, trace.Span) {
	tracer := otel.Tracer("triage-platform")
	ctx, span := tracer.Start(ctx, "stage.execute",
		trace.WithAttributes(
			attribute.String("triage.id", triageID),
			attribute.String("stage.name", stage),
		),
	)
	return ctx, span
}

// StartToolSpan 开始诊断工具调用 span
func StartToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	tracer := otel.Tracer("triage-platform")
	ctx, span := tracer.Start(ctx, "tool.invoke",
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
		),
	)
	return ctx, span
}
