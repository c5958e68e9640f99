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

package gateway

import (
	"context"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"triage-platform/pkg/config"
	"triage-platform/pkg/errors"
)

// Gateway 模型网关：给定消息历史与可选工具描述，返回一条响应消息。
// 响应可能携带 tool-call 请求，由调用方决定如何执行。
type Gateway interface {
	Invoke(ctx context.Context, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error)
}

// ChatModelGateway 基于 eino ToolCallingChatModel 的网关实现
type ChatModelGateway struct {
	base model.ToolCallingChatModel
}

// NewChatModelGateway 按配置创建 OpenAI 兼容的网关
func NewChatModelGateway(ctx context.Context, cfg config.ModelConfig) (*ChatModelGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidArg, "model api_key not configured")
	}
	mc := &openai.ChatModelConfig{
		Model:  cfg.Name,
		APIKey: cfg.APIKey,
	}
	if cfg.BaseURL != "" {
		mc.BaseURL = cfg.BaseURL
	}
	cm, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, errors.Wrap(err, "创建 OpenAI ChatModel failed")
	}
	return &ChatModelGateway{base: cm}, nil
}

// NewFromModel 包装已有的 ChatModel（测试或自定义 provider）
func NewFromModel(m model.ToolCallingChatModel) *ChatModelGateway {
	return &ChatModelGateway{base: m}
}

// Invoke 实现 Gateway。tools 非空时先绑定工具再生成。
func (g *ChatModelGateway) Invoke(ctx context.Context, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	m := g.base
	if len(tools) > 0 {
		bound, err := g.base.WithTools(tools)
		if err != nil {
			return nil, errors.Wrap(err, "绑定工具 failed")
		}
		m = bound
	}
	resp, err := m.Generate(ctx, messages)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// RateLimited 限流网关：令牌桶限制请求速率，信号量限制并发
type RateLimited struct {
	inner   Gateway
	limiter *rate.Limiter
	sem     chan struct{}
}

// NewRateLimited 包装限流。rps<=0 表示不限速，concurrency<=0 表示不限并发。
func NewRateLimited(inner Gateway, rps float64, burst, concurrency int) *RateLimited {
	rl := &RateLimited{inner: inner}
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		rl.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if concurrency > 0 {
		rl.sem = make(chan struct{}, concurrency)
	}
	return rl
}

// Invoke 实现 Gateway
func (g *RateLimited) Invoke(ctx context.Context, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if g.sem != nil {
		select {
		case g.sem <- struct{}{}:
			defer func() { <-g.sem }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.inner.Invoke(ctx, messages, tools)
}
