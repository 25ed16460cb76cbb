// cmd/server/main.go
package main

import (
	"log"

	"github.com/Corphon/SketchKeeper/internal/app"
)

func main() {
	log.Println("🚀 启动 SketchKeeper 服务器...")

	if err := app.Initialize(); err != nil {
		log.Fatalf("❌ 初始化失败: %v", err)
	}
	cfg := app.GetConfig()
	log.Printf("🌐 服务器启动在端口 %s", cfg.Port)
	log.Printf("🔗 编辑器会话: ws://localhost:%s/ws/session/<id>", cfg.Port)

	if err := app.Run(); err != nil {
		log.Fatalf("❌ 服务器异常退出: %v", err)
	}
	log.Println("✅ 服务器优雅关闭完成")
}
