package app

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/Corphon/SketchKeeper/internal/api"
	"github.com/Corphon/SketchKeeper/internal/config"
	"github.com/Corphon/SketchKeeper/internal/di"
	"github.com/Corphon/SketchKeeper/internal/services"
	"github.com/Corphon/SketchKeeper/internal/utils"
)

// 测试前的设置工作
func setupTest(t *testing.T) string {
	t.Helper()
	instance = nil
	tempDir := t.TempDir()

	t.Setenv("DATA_DIR", filepath.Join(tempDir, "data"))
	t.Setenv("WORKSPACE_DIR", filepath.Join(tempDir, "workspace"))
	t.Setenv("LOG_DIR", filepath.Join(tempDir, "logs"))
	t.Setenv("DEBUG_MODE", "false")
	t.Setenv("EXPORT_SOURCE", "https://sketch.test")
	t.Setenv("PROMPT_TIMEOUT", "5s")

	t.Cleanup(func() {
		utils.GetLogger().Close()
		instance = nil
	})
	return tempDir
}

// 测试创建模拟服务器
type mockServer struct {
	ShutdownCalled bool
}

func (m *mockServer) ListenAndServe() error {
	return nil
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	m.ShutdownCalled = true
	return nil
}

// TestGetApp 测试获取应用实例
func TestGetApp(t *testing.T) {
	instance = nil
	t.Cleanup(func() { instance = nil })

	app1 := GetApp()
	if app1 == nil {
		t.Fatal("GetApp应该返回一个非nil的应用实例")
	}
	if app2 := GetApp(); app1 != app2 {
		t.Fatal("GetApp应该返回相同的实例")
	}
	if app1.stopChan == nil {
		t.Fatal("应用实例的stopChan应该被初始化")
	}
}

// TestInitialize 测试完整初始化
func TestInitialize(t *testing.T) {
	tempDir := setupTest(t)

	if err := Initialize(); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}

	app := GetApp()
	if app.router == nil || app.server == nil {
		t.Fatal("路由和服务器应该已被设置")
	}
	if GetConfig().ExportSource != "https://sketch.test" {
		t.Errorf("配置未生效: %+v", GetConfig())
	}
	if IsDebugMode() {
		t.Error("DEBUG_MODE=false 应该关闭调试模式")
	}

	for _, dir := range []string{"data", "workspace", "logs"} {
		if _, err := os.Stat(filepath.Join(tempDir, dir)); err != nil {
			t.Errorf("目录 %s 应该已被创建: %v", dir, err)
		}
	}
	files, _ := os.ReadDir(filepath.Join(tempDir, "logs"))
	if len(files) == 0 {
		t.Error("应该已创建日志文件")
	}
}

// TestInitServices 测试服务注册
func TestInitServices(t *testing.T) {
	tempDir := t.TempDir()
	cfg := &config.AppConfig{
		DataDir:      filepath.Join(tempDir, "data"),
		WorkspaceDir: filepath.Join(tempDir, "workspace"),
		ExportSource: "https://sketch.test",
	}
	container := di.NewContainer()

	if err := InitServices(cfg, container); err != nil {
		t.Fatalf("初始化服务失败: %v", err)
	}

	required := []string{
		di.ServiceConfig, di.ServiceLogger, di.ServiceMetrics, di.ServiceWorkspace,
		di.ServiceDataStore, di.ServiceHandles, di.ServicePicker, di.ServiceVerifier,
		di.ServiceCodec, di.ServiceLibrary, di.ServicePersistence, di.ServiceSessions,
		di.ServiceRateLimiter,
	}
	for _, name := range required {
		if !container.Has(name) {
			t.Errorf("服务 %s 应该已被注册", name)
		}
	}
	if _, ok := container.Get(di.ServicePersistence).(*services.PersistenceService); !ok {
		t.Error("持久化服务类型错误")
	}
	if _, ok := container.Get(di.ServiceSessions).(*api.SessionHub); !ok {
		t.Error("会话服务类型错误")
	}
	if _, err := api.SetupRouter(container); err != nil {
		t.Fatalf("路由应能从容器构建: %v", err)
	}
}

// TestRun 测试应用运行和关闭
func TestRun(t *testing.T) {
	instance = nil
	t.Cleanup(func() { instance = nil })

	testApp := &App{
		config:    &config.AppConfig{Port: "8081"},
		container: di.NewContainer(),
		logger:    utils.NewLogger(nil),
		stopChan:  make(chan os.Signal, 1),
	}
	instance = testApp
	mockSrv := &mockServer{}
	testApp.server = mockSrv

	go func() {
		time.Sleep(100 * time.Millisecond)
		testApp.stopChan <- syscall.SIGTERM
	}()

	if err := Run(); err != nil {
		t.Fatalf("运行应用失败: %v", err)
	}
	if !mockSrv.ShutdownCalled {
		t.Error("应该调用了server.Shutdown")
	}
}

// TestRunWithoutInitialize 测试未初始化时运行
func TestRunWithoutInitialize(t *testing.T) {
	instance = nil
	t.Cleanup(func() { instance = nil })

	if err := Run(); err == nil {
		t.Fatal("未初始化时Run应该返回错误")
	}
}

// TestIsDebugMode 测试调试模式判断
func TestIsDebugMode(t *testing.T) {
	instance = nil
	t.Cleanup(func() { instance = nil })

	if IsDebugMode() {
		t.Error("没有配置时不应处于调试模式")
	}
	GetApp().config = &config.AppConfig{DebugMode: true}
	if !IsDebugMode() {
		t.Error("应该处于调试模式")
	}
}
