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

package redaction

import (
	"regexp"
)

// Pattern 单条脱敏规则：命中正则的片段替换为固定占位符
type Pattern struct {
	Name        string
	Placeholder string
	re          *regexp.Regexp
}

// NewPattern 创建脱敏规则；expr 非法时 panic（规则均为包内常量或启动期配置）
func NewPattern(name, expr, placeholder string) Pattern {
	return Pattern{Name: name, Placeholder: placeholder, re: regexp.MustCompile(expr)}
}

// Engine 文本脱敏引擎：在送往 LLM 前清洗动作文本/日志片段中的 PII
type Engine struct {
	patterns []Pattern
}

// NewEngine 创建脱敏引擎
func NewEngine(patterns ...Pattern) *Engine {
	return &Engine{patterns: patterns}
}

// Default 内置规则：邮箱、IPv4、API Key、JWT/Bearer Token
func Default() *Engine {
	return NewEngine(
		NewPattern("email", `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, "[EMAIL]"),
		NewPattern("ipv4", `\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`, "[IP_ADDR]"),
		NewPattern("api_key", `\b(sk-|pk-|api_)[A-Za-z0-9]{20,}\b`, "[API_KEY]"),
		NewPattern("jwt", `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`, "[TOKEN]"),
	)
}

// Sanitize 应用全部规则，返回脱敏后的文本
func (e *Engine) Sanitize(text string) string {
	out := text
	for _, p := range e.patterns {
		out = p.re.ReplaceAllString(out, p.Placeholder)
	}
	return out
}

// Matched 返回命中规则名列表（审计事件用），不修改文本
func (e *Engine) Matched(text string) []string {
	var names []string
	for _, p := range e.patterns {
		if p.re.MatchString(text) {
			names = append(names, p.Name)
		}
	}
	return names
}
