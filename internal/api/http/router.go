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

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
)

// Router HTTP 路由器
type Router struct {
	handler *Handler
}

// NewRouter 创建路由器
func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// Build 构建 Hertz 服务并挂载路由；opts 可追加链路追踪等扩展
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	hopts := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(hopts...)

	h.GET("/healthz", r.handler.HealthCheck)
	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")

	alerts := api.Group("/alerts")
	{
		alerts.POST("/", r.handler.SubmitAlert)
		alerts.POST("/synthetic", r.handler.SubmitSyntheticAlert)
	}

	triages := api.Group("/triages")
	{
		triages.GET("/", r.handler.ListTriages)
		triages.GET("/:id", r.handler.GetTriage)
		triages.GET("/:id/metrics", r.handler.TriageMetrics)
		triages.POST("/:id/approve", r.handler.ApproveTriage)
		triages.POST("/:id/reject", r.handler.RejectTriage)
	}

	return h
}
