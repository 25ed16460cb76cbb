// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/SketchKeeper/internal/api"
	"github.com/Corphon/SketchKeeper/internal/config"
	"github.com/Corphon/SketchKeeper/internal/di"
	"github.com/Corphon/SketchKeeper/internal/document"
	"github.com/Corphon/SketchKeeper/internal/filehandle"
	"github.com/Corphon/SketchKeeper/internal/services"
	"github.com/Corphon/SketchKeeper/internal/storage"
	"github.com/Corphon/SketchKeeper/internal/utils"
)

const (
	shutdownTimeout       = 30 * time.Second
	metricsReportInterval = 5 * time.Minute
)

// Server is the part of http.Server the app drives.
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用程序实例
type App struct {
	config    *config.AppConfig
	container *di.Container
	router    http.Handler
	server    Server
	logger    *utils.Logger
	stopChan  chan os.Signal
	cancel    context.CancelFunc
}

var (
	instance   *App
	instanceMu sync.Mutex
)

// GetApp 获取应用实例（单例）
func GetApp() *App {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		instance = &App{
			container: di.GetContainer(),
			logger:    utils.GetLogger(),
			stopChan:  make(chan os.Signal, 1),
		}
	}
	return instance
}

// Initialize 初始化应用: config, logging, services and the HTTP server.
func Initialize(envFiles ...string) error {
	app := GetApp()

	cfg, err := config.InitConfig(envFiles...)
	if err != nil {
		return fmt.Errorf("初始化配置失败: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	app.config = cfg

	if err := initLogger(cfg); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}

	if err := InitServices(cfg, app.container); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, err := api.SetupRouter(app.container)
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	app.router = router
	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	app.logger.Info("application initialized", map[string]interface{}{
		"port":      cfg.Port,
		"workspace": cfg.WorkspaceDir,
		"services":  len(app.container.GetNames()),
	})
	return nil
}

// initLogger 初始化日志系统
func initLogger(cfg *config.AppConfig) error {
	logFile := filepath.Join(cfg.LogDir, fmt.Sprintf("sketchkeeper_%s.log", time.Now().Format("2006-01-02")))
	if err := utils.InitLogger(logFile); err != nil {
		return err
	}
	level := utils.ParseLogLevel(cfg.LogLevel)
	if cfg.DebugMode && level > utils.DEBUG {
		level = utils.DEBUG
	}
	utils.GetLogger().SetLogLevel(level)
	return nil
}

// InitServices 按依赖顺序创建并注册所有服务
func InitServices(cfg *config.AppConfig, container *di.Container) error {
	logger := utils.GetLogger()
	metrics := utils.NewPersistenceMetrics(utils.GetMetricsCollector(), logger)

	workspace, err := storage.NewFileStorage(cfg.WorkspaceDir)
	if err != nil {
		return fmt.Errorf("创建工作区存储失败: %w", err)
	}
	dataStore, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("创建数据存储失败: %w", err)
	}
	handles, err := storage.NewHandleRegistry(dataStore)
	if err != nil {
		return err
	}

	picker := storage.NewDiskPicker(workspace, handles, logger)
	verifier := filehandle.NewVerifier(logger)
	codec := document.NewCodec(cfg.ExportSource, document.NewExportSanitizer(cfg.ExportableAppStateKeys))
	library := services.NewLibraryService(dataStore, metrics, logger)
	persistence := services.NewPersistenceService(
		codec, picker, verifier, services.NewSceneLoader(logger), library, metrics, logger)

	container.Register(di.ServiceConfig, cfg)
	container.Register(di.ServiceLogger, logger)
	container.Register(di.ServiceMetrics, metrics)
	container.Register(di.ServiceWorkspace, workspace)
	container.Register(di.ServiceDataStore, dataStore)
	container.Register(di.ServiceHandles, handles)
	container.Register(di.ServicePicker, picker)
	container.Register(di.ServiceVerifier, verifier)
	container.Register(di.ServiceCodec, codec)
	container.Register(di.ServiceLibrary, library)
	container.Register(di.ServicePersistence, persistence)
	container.Register(di.ServiceSessions, api.NewSessionHub(cfg.PromptTimeout, metrics.Collector(), logger))
	container.Register(di.ServiceRateLimiter, api.NewRateLimiter())
	return nil
}

// Run 启动服务器并阻塞直到收到停止信号
func Run() error {
	app := GetApp()
	if app.server == nil {
		return fmt.Errorf("应用尚未初始化")
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	app.startBackground(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(app.stopChan)

	select {
	case sig := <-app.stopChan:
		app.logger.Info("shutting down", map[string]interface{}{"signal": sig.String()})
	case err := <-errChan:
		app.cleanup()
		return fmt.Errorf("启动服务器失败: %w", err)
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	err := app.server.Shutdown(shutdownCtx)
	app.cleanup()
	return err
}

func (a *App) startBackground(ctx context.Context) {
	if hub, ok := a.container.Get(di.ServiceSessions).(*api.SessionHub); ok {
		go hub.Run(ctx)
	}
	if limiter, ok := a.container.Get(di.ServiceRateLimiter).(*api.RateLimiter); ok {
		go limiter.Run(ctx, time.Hour)
	}
	if metrics, ok := a.container.Get(di.ServiceMetrics).(*utils.PersistenceMetrics); ok {
		metrics.StartMetricsCollection(ctx, metricsReportInterval)
	}
}

// cleanup 释放资源
func (a *App) cleanup() {
	if a.cancel != nil {
		a.cancel()
	}
	if hub, ok := a.container.Get(di.ServiceSessions).(*api.SessionHub); ok {
		hub.Shutdown()
	}
	a.logger.Info("application stopped", nil)
}

// GetConfig 获取应用配置
func GetConfig() *config.AppConfig {
	return GetApp().config
}

// GetDIContainer 获取依赖注入容器
func GetDIContainer() *di.Container {
	return GetApp().container
}

// IsDebugMode 是否为调试模式
func IsDebugMode() bool {
	cfg := GetApp().config
	return cfg != nil && cfg.DebugMode
}
