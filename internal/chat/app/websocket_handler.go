package app

import (
	"context"
	"time"

	"team_portal_service/pkg/logger"
	"team_portal_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RealtimeOptions websocket keep-alive setting
type RealtimeOptions struct {
	PingInterval time.Duration
	WriteWait    time.Duration
}

// ChatWebsocketHandler team chat websocket entry
type ChatWebsocketHandler struct {
	sessions *SessionManager
	opts     RealtimeOptions
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(sessions *SessionManager, opts RealtimeOptions) *ChatWebsocketHandler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	return &ChatWebsocketHandler{sessions: sessions, opts: opts}
}

// HandleConnection 是 WebSocket 連線的進入點
// 一條連線: 一個 read loop + 一個 writer goroutine (唯一寫入者)
func (h *ChatWebsocketHandler) HandleConnection(conn *websocket.Conn) {
	memberID, _ := conn.Locals(middlewares.TokenMemberID).(int64)
	name, _ := conn.Locals(middlewares.TokenName).(string)
	handle := uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	session, out := h.sessions.Open(handle, memberID, name)
	logger.Log.Info("websocket open", zap.Int64("member_id", memberID), zap.String("handle", handle))

	writerDone := make(chan struct{})
	go h.writeLoop(conn, out, handle, writerDone)

	defer func() {
		cancel()
		// Close 會 Unregister, outbound 關閉後 writer 結束
		session.Close()
		<-writerDone
		conn.Close()
		logger.Log.Info("websocket close", zap.Int64("member_id", memberID), zap.String("handle", handle))
	}()

	//client發出close
	//fiber會自動處理(在read msg 回傳err),故需要SetCloseHandler另外接出
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Debug("websocket close frame", zap.String("handle", handle), zap.Int("code", code))
		return nil
	})

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("received pong", zap.String("handle", handle))
		return nil
	})

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Debug("connection closed", zap.String("handle", handle), zap.Error(err))
			} else {
				//直接斷線 1006
				logger.Log.Warn("websocket read error", zap.String("handle", handle), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		resp := session.Handle(ctx, message)
		if err := h.sessions.Reply(handle, resp); err != nil {
			logger.Log.Warn("ack not delivered", zap.String("handle", handle), zap.Error(err))
		}
	}
}

func (h *ChatWebsocketHandler) writeLoop(conn *websocket.Conn, out *Connection, handle string, done chan<- struct{}) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case frame, ok := <-out.Outbound():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Log.Warn("write message error", zap.String("handle", handle), zap.Error(err))
				// 讓 read loop 結束
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(h.opts.WriteWait)); err != nil {
				logger.Log.Warn("ping error", zap.String("handle", handle), zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}
