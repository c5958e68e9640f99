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
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"triage-platform/internal/triage"
	"triage-platform/pkg/metrics"
	"triage-platform/pkg/tracing"
)

// executeToolCalls 执行一个回合内的全部 tool-call。
// 同一回合的调用相互独立，并发派发；结果按模型请求的顺序重组后
// 逐条转成 tool 消息。执行失败转为错误载荷，供阶段下一轮自行应对。
func (e *Engine) executeToolCalls(ctx context.Context, calls []schema.ToolCall) []*schema.Message {
	out := make([]*schema.Message, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call schema.ToolCall) {
			defer wg.Done()
			out[i] = e.executeOne(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return out
}

func (e *Engine) executeOne(ctx context.Context, call schema.ToolCall) *schema.Message {
	name := call.Function.Name
	ctx, span := tracing.StartToolSpan(ctx, name)
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	t, ok := e.registry.Get(name)
	if !ok {
		return toolErrorMessage(call, fmt.Sprintf("unknown tool %q", name))
	}

	var args map[string]any
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return toolErrorMessage(call, fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	res, err := t.Execute(ctx, args)
	if err != nil {
		return toolErrorMessage(call, err.Error())
	}
	if res.Err != "" {
		return toolErrorMessage(call, res.Err)
	}
	return schema.ToolMessage(res.Content, call.ID, schema.WithToolName(name))
}

// toolErrorMessage 错误载荷仍以 tool 消息回填历史，保证消息序列合法
func toolErrorMessage(call schema.ToolCall, reason string) *schema.Message {
	payload, _ := json.Marshal(map[string]string{"error": reason})
	return schema.ToolMessage(string(payload), call.ID, schema.WithToolName(call.Function.Name))
}

// toolResultsUpdate 工具结果追加到状态的局部更新
func toolResultsUpdate(stage Stage, calls []schema.ToolCall, msgs []*schema.Message) triage.Update {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Function.Name
	}
	ev := triage.NewEvent("tools", fmt.Sprintf("executed %d tool call(s) for %s", len(calls), stage))
	ev.ToolCalls = names
	return triage.Update{
		Messages: msgs,
		Events:   []triage.Event{ev},
	}
}

// maxRoundsUpdate 工具回合数到达上限时的强制推进更新：为每个未决
// tool-call 回填错误载荷，保证历史仍然合法，随后记录封顶事件。
func maxRoundsUpdate(stage Stage, calls []schema.ToolCall, limit int) triage.Update {
	msgs := make([]*schema.Message, len(calls))
	for i, c := range calls {
		msgs[i] = toolErrorMessage(c, "max tool iterations reached")
	}
	ev := triage.NewEvent(string(stage), fmt.Sprintf("max tool iterations reached (%d), forcing advance", limit))
	return triage.Update{
		Messages: msgs,
		Events:   []triage.Event{ev},
	}
}
