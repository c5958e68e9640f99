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

package registry

import (
	"sort"
	"sync"

	"github.com/cloudwego/eino/schema"

	"triage-platform/internal/tool"
)

// Registry 工具注册表：注册、发现、供 LLM 使用的 ToolInfo 列表
type Registry struct {
	mu    sync.RWMutex
	tools map[string]tool.Tool
}

// New 创建新的 ToolRegistry
func New() *Registry {
	return &Registry{
		tools: make(map[string]tool.Tool),
	}
}

// Register 注册工具
func (r *Registry) Register(t tool.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get 按名称获取工具
func (r *Registry) Get(name string) (tool.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List 返回所有已注册工具，按名称排序
func (r *Registry) List() []tool.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tool.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// ToolInfos 返回所有工具的 eino ToolInfo（绑定到 ChatModel 的 function-calling）
func (r *Registry) ToolInfos() []*schema.ToolInfo {
	list := r.List()
	infos := make([]*schema.ToolInfo, 0, len(list))
	for _, t := range list {
		infos = append(infos, ToolInfo(t))
	}
	return infos
}

// ToolInfo 将单个工具转换为 eino ToolInfo
func ToolInfo(t tool.Tool) *schema.ToolInfo {
	s := t.Schema()
	params := make(map[string]*schema.ParameterInfo, len(s.Properties))
	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}
	for name, prop := range s.Properties {
		params[name] = &schema.ParameterInfo{
			Type:     toDataType(prop.Type),
			Desc:     prop.Description,
			Enum:     prop.Enum,
			Required: required[name],
		}
	}
	return &schema.ToolInfo{
		Name:        t.Name(),
		Desc:        t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}
}

func toDataType(typ string) schema.DataType {
	switch typ {
	case "integer":
		return schema.Integer
	case "number":
		return schema.Number
	case "boolean":
		return schema.Boolean
	case "object":
		return schema.Object
	case "array":
		return schema.Array
	default:
		return schema.String
	}
}
