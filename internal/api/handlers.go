// internal/api/handlers.go
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/SketchKeeper/internal/document"
	apperrors "github.com/Corphon/SketchKeeper/internal/errors"
	"github.com/Corphon/SketchKeeper/internal/filehandle"
	"github.com/Corphon/SketchKeeper/internal/models"
	"github.com/Corphon/SketchKeeper/internal/services"
	"github.com/Corphon/SketchKeeper/internal/storage"
	"github.com/Corphon/SketchKeeper/internal/utils"
)

// Handler 处理API请求
type Handler struct {
	Persistence *services.PersistenceService // 保存/加载入口
	Library     *services.LibraryService     // 素材库
	Handles     *storage.HandleRegistry      // 文件句柄
	Workspace   *storage.FileStorage         // 工作区文件
	Verifier    *filehandle.Verifier         // 权限校验
	Metrics     *utils.PersistenceMetrics
	Sessions    *SessionHub
	Response    *ResponseHelper
	startedAt   time.Time
}

// NewHandler 创建API处理器
func NewHandler(
	persistence *services.PersistenceService,
	library *services.LibraryService,
	handles *storage.HandleRegistry,
	workspace *storage.FileStorage,
	verifier *filehandle.Verifier,
	metrics *utils.PersistenceMetrics,
	sessions *SessionHub,
	logger *utils.Logger,
) *Handler {
	return &Handler{
		Persistence: persistence,
		Library:     library,
		Handles:     handles,
		Workspace:   workspace,
		Verifier:    verifier,
		Metrics:     metrics,
		Sessions:    sessions,
		Response:    NewResponseHelper(logger),
		startedAt:   time.Now(),
	}
}

// SceneRequest carries editor state for save and serialize.
type SceneRequest struct {
	Elements     []models.Element `json:"elements"`
	AppState     models.AppState  `json:"appState"`
	FileHandleID string           `json:"file_handle_id,omitempty"`
}

// LoadSceneRequest carries the editor's current app state.
type LoadSceneRequest struct {
	AppState models.AppState `json:"appState"`
}

// AddLibraryItemRequest 添加素材项请求
type AddLibraryItemRequest struct {
	Item models.LibraryItem `json:"item" binding:"required"`
}

// SavedFileResponse describes the file a document was written to.
type SavedFileResponse struct {
	FileHandleID string `json:"file_handle_id"`
	Name         string `json:"name"`
	Digest       string `json:"digest,omitempty"`
}

// ========================================
// 场景
// ========================================

// SaveScene 保存场景; with file_handle_id the file is overwritten in place.
func (h *Handler) SaveScene(c *gin.Context) {
	var req SceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式无效", err.Error())
		return
	}

	var existing filehandle.Handle
	if req.FileHandleID != "" {
		handle, err := h.Handles.Get(req.FileHandleID)
		if err != nil {
			h.Response.HandleError(c, err)
			return
		}
		existing = handle
	}

	handle, err := h.Persistence.SaveScene(c.Request.Context(), req.Elements, req.AppState, existing)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, h.savedFile(handle), "场景已保存")
}

// LoadScene 打开场景文件
func (h *Handler) LoadScene(c *gin.Context) {
	var req LoadSceneRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		// 空请求体等同于没有本地状态
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			h.Response.BadRequest(c, "请求格式无效", err.Error())
			return
		}
	}

	scene, err := h.Persistence.LoadScene(c.Request.Context(), req.AppState)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}

	data := gin.H{
		"elements": scene.Elements,
		"appState": scene.AppState,
		"source":   scene.Source,
	}
	if scene.Handle != nil {
		data["file_handle_id"] = scene.Handle.ID()
		data["name"] = scene.Handle.Name()
	}
	h.Response.Success(c, data)
}

// SerializeScene returns the scene document as a download.
func (h *Handler) SerializeScene(c *gin.Context) {
	var req SceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式无效", err.Error())
		return
	}
	text := h.Persistence.Codec().SerializeScene(req.Elements, req.AppState)
	h.Response.DownloadResponse(c, text, services.SceneFileName(req.AppState), models.MIMETypeScene)
}

// ValidateDocument reports which document kinds the body is accepted as.
func (h *Handler) ValidateDocument(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.Response.BadRequest(c, "读取请求失败", err.Error())
		return
	}

	result := gin.H{"scene": false, "library": false}
	candidate, err := document.Parse(body)
	if err != nil {
		result["error"] = err.Error()
		h.Response.Success(c, result)
		return
	}
	result["scene"] = document.IsSceneDocument(candidate)
	result["library"] = document.IsLibraryDocument(candidate)
	if version, ok := document.DocumentVersion(candidate); ok {
		result["version"] = version
	}
	h.Response.Success(c, result)
}

// ========================================
// 素材库
// ========================================

// GetLibrary 获取素材库
func (h *Handler) GetLibrary(c *gin.Context) {
	items, err := h.Library.LoadLibrary(c.Request.Context())
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"items": items, "count": len(items)})
}

// AddLibraryItem 添加素材项
func (h *Handler) AddLibraryItem(c *gin.Context) {
	var req AddLibraryItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式无效", err.Error())
		return
	}
	added, err := h.Library.AddItem(c.Request.Context(), req.Item)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"added": added})
}

// RemoveLibraryItem 删除素材项
func (h *Handler) RemoveLibraryItem(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.Response.BadRequest(c, "索引必须是整数")
		return
	}
	if err := h.Library.RemoveItem(c.Request.Context(), index); err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, nil, "素材项已删除")
}

// ClearLibrary 清空素材库
func (h *Handler) ClearLibrary(c *gin.Context) {
	if err := h.Library.Clear(c.Request.Context()); err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, nil, "素材库已清空")
}

// SaveLibrary 导出素材库
func (h *Handler) SaveLibrary(c *gin.Context) {
	handle, err := h.Persistence.SaveLibrary(c.Request.Context())
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, h.savedFile(handle), "素材库已导出")
}

// ImportLibrary 导入素材库文件
func (h *Handler) ImportLibrary(c *gin.Context) {
	added, err := h.Persistence.ImportLibrary(c.Request.Context())
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"added": added})
}

// ========================================
// 文件句柄
// ========================================

// ListHandles 列出文件句柄
func (h *Handler) ListHandles(c *gin.Context) {
	h.Response.Success(c, h.Handles.List())
}

// GetHandlePermission reports a handle's permission without prompting.
func (h *Handler) GetHandlePermission(c *gin.Context) {
	info, err := h.Handles.Info(c.Param("id"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, info)
}

// VerifyHandle checks write permission, prompting the session if needed.
func (h *Handler) VerifyHandle(c *gin.Context) {
	handle, err := h.Handles.Get(c.Param("id"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	outcome := h.Verifier.CheckPermission(c.Request.Context(), handle)
	h.Metrics.RecordPermissionCheck(string(outcome))
	h.Response.Success(c, gin.H{
		"granted": outcome == filehandle.OutcomeGranted,
		"outcome": outcome,
	})
}

// RevokeHandle resets a handle's permission to unknown.
func (h *Handler) RevokeHandle(c *gin.Context) {
	if err := h.Handles.Revoke(c.Param("id")); err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, nil, "权限已撤销")
}

// ForgetHandle 删除文件句柄; with delete_file=true the file goes too.
func (h *Handler) ForgetHandle(c *gin.Context) {
	deleteFile, err := strconv.ParseBool(c.DefaultQuery("delete_file", "false"))
	if err != nil {
		h.Response.BadRequest(c, "delete_file 必须是布尔值")
		return
	}
	info, err := h.Handles.Info(c.Param("id"))
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}

	if deleteFile {
		if err := h.Workspace.Delete(info.Path); err != nil && !apperrors.IsNotFoundError(err) {
			h.Response.HandleError(c, err)
			return
		}
	}
	if err := h.Handles.Forget(info.ID); err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"file_deleted": deleteFile}, "文件句柄已删除")
}

// ========================================
// 工作区
// ========================================

// ListWorkspaceFiles lists the scene and library files an open dialog can offer.
func (h *Handler) ListWorkspaceFiles(c *gin.Context) {
	files, err := h.Workspace.List("", models.ExtensionScene, models.ExtensionLibrary)
	if err != nil {
		h.Response.HandleError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"files": files, "count": len(files)})
}

// ========================================
// 运行状态
// ========================================

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// GetMetrics 获取运行指标
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"metrics":  h.Metrics.Collector().GetMetrics(),
		"sessions": h.Sessions.GetStatus(),
	})
}

func (h *Handler) savedFile(handle filehandle.Handle) SavedFileResponse {
	resp := SavedFileResponse{FileHandleID: handle.ID(), Name: handle.Name()}
	if info, err := h.Handles.Info(handle.ID()); err == nil {
		resp.Digest = info.LastDigest
	}
	return resp
}
