// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/SketchKeeper/internal/utils"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketConnWrapper 包装真实的 websocket.Conn 以实现接口
type WebSocketConnWrapper struct {
	*websocket.Conn
}

// incomingMessage is any message an editor sends over its session.
type incomingMessage struct {
	Type string `json:"type"`
	promptReply
}

// WebSocketHandler 处理编辑器会话连接
type WebSocketHandler struct {
	hub    *SessionHub
	logger *utils.Logger
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(hub *SessionHub, logger *utils.Logger) *WebSocketHandler {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &WebSocketHandler{hub: hub, logger: logger}
}

// SessionWebSocket opens the prompt channel for one editor session.
func (wh *WebSocketHandler) SessionWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		http.Error(c.Writer, "会话ID缺失", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wh.logger.Warn("websocket upgrade failed", map[string]interface{}{
			"session": sessionID,
			"error":   err.Error(),
		})
		return
	}

	client := newSessionClient(&WebSocketConnWrapper{conn}, sessionID, wh.hub.promptTimeout)
	wh.hub.Register(client)
	defer wh.hub.Unregister(client)

	go wh.handleWebSocketWrites(client)

	client.SendMessage(map[string]interface{}{
		"type":       "connected",
		"session_id": sessionID,
		"timestamp":  time.Now().Format(time.RFC3339),
	})

	wh.handleWebSocketReads(client)
}

// handleWebSocketReads 处理 WebSocket 读取 until the connection fails.
func (wh *WebSocketHandler) handleWebSocketReads(client *SessionClient) {
	client.conn.SetReadDeadline(time.Now().Add(readTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		return client.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for !client.IsClosed() {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wh.logger.Warn("websocket read failed", map[string]interface{}{
					"session": client.sessionID,
					"error":   err.Error(),
				})
			}
			return
		}
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg incomingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.SendMessage(errorMessage("消息格式无效"))
			continue
		}
		wh.handleMessage(client, msg)
	}
}

// handleWebSocketWrites 处理 WebSocket 写入
func (wh *WebSocketHandler) handleWebSocketWrites(client *SessionClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.done:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			client.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleMessage 处理收到的 WebSocket 消息
func (wh *WebSocketHandler) handleMessage(client *SessionClient, msg incomingMessage) {
	switch msg.Type {
	case "prompt_reply":
		if !client.resolve(msg.promptReply) {
			client.SendMessage(errorMessage("提示不存在或已过期"))
		}
	case "ping":
		client.SendMessage(map[string]interface{}{
			"type":      "pong",
			"timestamp": time.Now().Unix(),
		})
	default:
		wh.logger.Debug("unknown websocket message", map[string]interface{}{
			"session": client.sessionID,
			"type":    msg.Type,
		})
	}
}

func errorMessage(msg string) map[string]interface{} {
	return map[string]interface{}{
		"type":      "error",
		"error":     msg,
		"timestamp": time.Now().Format(time.RFC3339),
	}
}
