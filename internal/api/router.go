// internal/api/router.go
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/SketchKeeper/internal/config"
	"github.com/Corphon/SketchKeeper/internal/di"
	"github.com/Corphon/SketchKeeper/internal/filehandle"
	"github.com/Corphon/SketchKeeper/internal/services"
	"github.com/Corphon/SketchKeeper/internal/storage"
	"github.com/Corphon/SketchKeeper/internal/utils"
)

// SetupRouter 配置HTTP路由; every service comes from the container.
func SetupRouter(container *di.Container) (*gin.Engine, error) {
	cfg, err := di.Resolve[*config.AppConfig](container, di.ServiceConfig)
	if err != nil {
		return nil, err
	}
	persistence, err := di.Resolve[*services.PersistenceService](container, di.ServicePersistence)
	if err != nil {
		return nil, err
	}
	library, err := di.Resolve[*services.LibraryService](container, di.ServiceLibrary)
	if err != nil {
		return nil, err
	}
	handles, err := di.Resolve[*storage.HandleRegistry](container, di.ServiceHandles)
	if err != nil {
		return nil, err
	}
	workspace, err := di.Resolve[*storage.FileStorage](container, di.ServiceWorkspace)
	if err != nil {
		return nil, err
	}
	verifier, err := di.Resolve[*filehandle.Verifier](container, di.ServiceVerifier)
	if err != nil {
		return nil, err
	}
	metrics, err := di.Resolve[*utils.PersistenceMetrics](container, di.ServiceMetrics)
	if err != nil {
		return nil, err
	}
	sessions, err := di.Resolve[*SessionHub](container, di.ServiceSessions)
	if err != nil {
		return nil, err
	}
	limiter, err := di.Resolve[*RateLimiter](container, di.ServiceRateLimiter)
	if err != nil {
		return nil, err
	}
	logger, _ := container.Get(di.ServiceLogger).(*utils.Logger)

	handler := NewHandler(persistence, library, handles, workspace, verifier, metrics, sessions, logger)
	wsHandler := NewWebSocketHandler(sessions, logger)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(corsMiddleware())
	r.Use(MetricsMiddleware(metrics))

	// 编辑器会话
	r.GET("/ws/session/:id", wsHandler.SessionWebSocket)

	api := r.Group("/api")
	api.Use(RateLimitByIP(limiter, cfg.RateLimitPerMinute, time.Minute))
	api.Use(SessionMiddleware(sessions))
	{
		api.GET("/health", handler.Health)
		api.GET("/metrics", handler.GetMetrics)

		api.POST("/documents/validate", handler.ValidateDocument)

		// ===============================
		// 场景相关路由
		// ===============================
		scenesGroup := api.Group("/scenes")
		{
			scenesGroup.POST("/save", handler.SaveScene)
			scenesGroup.POST("/load", handler.LoadScene)
			scenesGroup.POST("/serialize", handler.SerializeScene)
		}

		// ===============================
		// 素材库相关路由
		// ===============================
		libraryGroup := api.Group("/library")
		{
			libraryGroup.GET("", handler.GetLibrary)
			libraryGroup.DELETE("", handler.ClearLibrary)
			libraryGroup.POST("/items", handler.AddLibraryItem)
			libraryGroup.DELETE("/items/:index", handler.RemoveLibraryItem)
			libraryGroup.POST("/save", handler.SaveLibrary)
			libraryGroup.POST("/import", handler.ImportLibrary)
		}

		// ===============================
		// 文件句柄相关路由
		// ===============================
		handlesGroup := api.Group("/handles")
		{
			handlesGroup.GET("", handler.ListHandles)
			handlesGroup.DELETE("/:id", handler.ForgetHandle)
			handlesGroup.GET("/:id/permission", handler.GetHandlePermission)
			handlesGroup.DELETE("/:id/permission", handler.RevokeHandle)
			handlesGroup.POST("/:id/verify", handler.VerifyHandle)
		}

		api.GET("/workspace/files", handler.ListWorkspaceFiles)
	}

	return r, nil
}
