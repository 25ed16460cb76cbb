// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorForbidden     = "FORBIDDEN"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 文档相关错误
	ErrorDocumentInvalid = "DOCUMENT_INVALID"

	// 文件句柄相关错误
	ErrorPermissionAborted = "PERMISSION_ABORTED"

	// 交互会话相关错误
	ErrorPromptDismissed = "PROMPT_DISMISSED"
	ErrorPromptTimeout   = "PROMPT_TIMEOUT"
	ErrorSessionRequired = "SESSION_REQUIRED"
	ErrorRequestCanceled = "REQUEST_CANCELED"
)

// StatusClientClosedRequest 客户端在响应前断开 (nginx 约定)
const StatusClientClosedRequest = 499
