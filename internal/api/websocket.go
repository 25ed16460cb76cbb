// internal/api/websocket.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Corphon/SketchKeeper/internal/prompt"
	"github.com/Corphon/SketchKeeper/internal/utils"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var (
	errSessionClosed = errors.New("session closed")
	errSendQueueFull = errors.New("session send queue full")
)

const sessionsGauge = "ws_sessions_active"

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Prompt kinds sent to the editor.
const (
	promptKindPermission = "permission"
	promptKindSave       = "save_file"
	promptKindOpen       = "open_file"
)

// promptMessage is pushed to the editor; the editor answers with a
// promptReply carrying the same prompt id.
type promptMessage struct {
	Type     string      `json:"type"`
	PromptID string      `json:"prompt_id"`
	Kind     string      `json:"kind"`
	Request  interface{} `json:"request"`
}

type promptReply struct {
	PromptID  string `json:"prompt_id"`
	Dismissed bool   `json:"dismissed"`
	Granted   bool   `json:"granted"`
	Name      string `json:"name"`
}

// SessionClient 表示一个编辑器会话连接; it answers prompts for HTTP
// requests that carry its session id.
type SessionClient struct {
	conn          WebSocketConnection
	sessionID     string
	send          chan []byte
	done          chan struct{}
	closed        int32 // 0=开启，1=关闭
	lastPing      int64 // unix nano
	createdAt     time.Time
	promptTimeout time.Duration

	pendingMu sync.Mutex
	pending   map[string]chan promptReply
}

func newSessionClient(conn WebSocketConnection, sessionID string, promptTimeout time.Duration) *SessionClient {
	now := time.Now()
	return &SessionClient{
		conn:          conn,
		sessionID:     sessionID,
		send:          make(chan []byte, 64),
		done:          make(chan struct{}),
		lastPing:      now.UnixNano(),
		createdAt:     now,
		promptTimeout: promptTimeout,
		pending:       make(map[string]chan promptReply),
	}
}

// Close 安全关闭客户端连接; pending prompts fail as dismissed.
func (client *SessionClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.done)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// IsClosed 检查连接是否已关闭
func (client *SessionClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后ping时间
func (client *SessionClient) UpdatePing() {
	atomic.StoreInt64(&client.lastPing, time.Now().UnixNano())
}

// IsExpired 检查连接是否超时
func (client *SessionClient) IsExpired(timeout time.Duration) bool {
	last := time.Unix(0, atomic.LoadInt64(&client.lastPing))
	return time.Since(last) > timeout
}

// SendMessage 发送消息到客户端, never blocking on a slow reader.
func (client *SessionClient) SendMessage(message interface{}) error {
	if client.IsClosed() {
		return errSessionClosed
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.send <- msgBytes:
		return nil
	case <-client.done:
		return errSessionClosed
	default:
		return errSendQueueFull
	}
}

// ConfirmPermission asks the editor to allow access to a handle.
func (client *SessionClient) ConfirmPermission(ctx context.Context, req prompt.PermissionRequest) (bool, error) {
	reply, err := client.ask(ctx, promptKindPermission, req)
	if err != nil {
		return false, err
	}
	return reply.Granted, nil
}

// ChooseSaveTarget asks the editor for a destination file name.
func (client *SessionClient) ChooseSaveTarget(ctx context.Context, req prompt.SaveRequest) (string, error) {
	reply, err := client.ask(ctx, promptKindSave, req)
	if err != nil {
		return "", err
	}
	return reply.Name, nil
}

// ChooseOpenTarget asks the editor which file to open.
func (client *SessionClient) ChooseOpenTarget(ctx context.Context, req prompt.OpenRequest) (string, error) {
	reply, err := client.ask(ctx, promptKindOpen, req)
	if err != nil {
		return "", err
	}
	return reply.Name, nil
}

func (client *SessionClient) ask(ctx context.Context, kind string, request interface{}) (promptReply, error) {
	id := uuid.NewString()
	replies := make(chan promptReply, 1)

	client.pendingMu.Lock()
	client.pending[id] = replies
	client.pendingMu.Unlock()
	defer func() {
		client.pendingMu.Lock()
		delete(client.pending, id)
		client.pendingMu.Unlock()
	}()

	if client.promptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, client.promptTimeout)
		defer cancel()
	}

	msg := promptMessage{Type: "prompt", PromptID: id, Kind: kind, Request: request}
	if err := client.SendMessage(msg); err != nil {
		return promptReply{}, fmt.Errorf("发送提示失败: %w", err)
	}

	select {
	case reply := <-replies:
		if reply.Dismissed {
			return reply, prompt.ErrDismissed
		}
		return reply, nil
	case <-client.done:
		return promptReply{}, fmt.Errorf("%w: %v", prompt.ErrDismissed, errSessionClosed)
	case <-ctx.Done():
		client.SendMessage(map[string]interface{}{"type": "prompt_cancelled", "prompt_id": id})
		return promptReply{}, ctx.Err()
	}
}

// resolve delivers a reply to the waiting prompt. Unknown or late replies
// are dropped.
func (client *SessionClient) resolve(reply promptReply) bool {
	client.pendingMu.Lock()
	replies, ok := client.pending[reply.PromptID]
	client.pendingMu.Unlock()
	if !ok {
		return false
	}
	select {
	case replies <- reply:
		return true
	default:
		return false
	}
}

// SessionHub 管理所有编辑器会话
type SessionHub struct {
	mu            sync.RWMutex
	sessions      map[string]*SessionClient
	promptTimeout time.Duration
	pingTimeout   time.Duration

	metrics *utils.MetricsCollector
	logger  *utils.Logger
}

// NewSessionHub creates a hub whose prompts wait at most promptTimeout
// (zero waits for the request context).
func NewSessionHub(promptTimeout time.Duration, metrics *utils.MetricsCollector, logger *utils.Logger) *SessionHub {
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &SessionHub{
		sessions:      make(map[string]*SessionClient),
		promptTimeout: promptTimeout,
		pingTimeout:   90 * time.Second,
		metrics:       metrics,
		logger:        logger,
	}
}

// Register 注册会话; a reconnect under the same id replaces the old client.
func (hub *SessionHub) Register(client *SessionClient) {
	hub.mu.Lock()
	old := hub.sessions[client.sessionID]
	hub.sessions[client.sessionID] = client
	hub.metrics.SetGauge(sessionsGauge, int64(len(hub.sessions)))
	hub.mu.Unlock()

	if old != nil && old != client {
		old.Close()
	}
	hub.logger.Info("editor session connected", map[string]interface{}{"session": client.sessionID})
}

// Unregister 注销会话 if it is still the registered one.
func (hub *SessionHub) Unregister(client *SessionClient) {
	hub.mu.Lock()
	if hub.sessions[client.sessionID] == client {
		delete(hub.sessions, client.sessionID)
	}
	hub.metrics.SetGauge(sessionsGauge, int64(len(hub.sessions)))
	hub.mu.Unlock()

	client.Close()
	hub.logger.Info("editor session disconnected", map[string]interface{}{"session": client.sessionID})
}

// Prompter returns the live session registered under sessionID.
func (hub *SessionHub) Prompter(sessionID string) (prompt.Prompter, bool) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	client, ok := hub.sessions[sessionID]
	if !ok || client.IsClosed() {
		return nil, false
	}
	return client, true
}

// Run 定期清理过期会话 until ctx ends, then closes every session.
func (hub *SessionHub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hub.cleanupExpiredSessions()
		case <-ctx.Done():
			hub.Shutdown()
			return
		}
	}
}

func (hub *SessionHub) cleanupExpiredSessions() {
	hub.mu.Lock()
	var expired []*SessionClient
	for id, client := range hub.sessions {
		if client.IsClosed() || client.IsExpired(hub.pingTimeout) {
			delete(hub.sessions, id)
			expired = append(expired, client)
		}
	}
	hub.metrics.SetGauge(sessionsGauge, int64(len(hub.sessions)))
	hub.mu.Unlock()

	for _, client := range expired {
		client.Close()
	}
}

// Shutdown 关闭所有会话
func (hub *SessionHub) Shutdown() {
	hub.mu.Lock()
	sessions := hub.sessions
	hub.sessions = make(map[string]*SessionClient)
	hub.metrics.SetGauge(sessionsGauge, 0)
	hub.mu.Unlock()

	for _, client := range sessions {
		client.Close()
	}
}

// GetStatus 获取会话状态
func (hub *SessionHub) GetStatus() map[string]interface{} {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	sessions := make([]map[string]interface{}, 0, len(hub.sessions))
	for id, client := range hub.sessions {
		client.pendingMu.Lock()
		pending := len(client.pending)
		client.pendingMu.Unlock()

		sessions = append(sessions, map[string]interface{}{
			"session_id":      id,
			"connected_at":    client.createdAt.Format(time.RFC3339),
			"pending_prompts": pending,
		})
	}
	return map[string]interface{}{
		"total_sessions": len(hub.sessions),
		"sessions":       sessions,
	}
}
