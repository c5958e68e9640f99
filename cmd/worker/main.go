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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triage-platform/internal/app/worker"
	"triage-platform/pkg/config"
)

func main() {
	configPath := flag.String("config", "configs/worker.yaml", "配置文件路径")
	addr := flag.String("addr", "", "HTTP 监听地址，空则取配置中的 Prometheus 端口")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("加载配置失败（%v），使用内存默认配置", err)
		cfg = config.Default()
	}

	app, err := worker.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("启动应用失败: %v", err)
	}

	listenAddr := *addr
	if listenAddr == "" {
		port := cfg.Monitoring.Prometheus.Port
		if port <= 0 {
			port = 8090
		}
		listenAddr = fmt.Sprintf(":%d", port)
	}

	// HTTP 服务阻塞运行，收到信号后优雅关闭
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Run(listenAddr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("收到信号 %v，开始关闭", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("HTTP 服务退出: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		log.Printf("关闭应用失败: %v", err)
	}

	fmt.Println("应用已关闭")
}
