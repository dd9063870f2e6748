package app

import (
	"context"
	"encoding/json"
	"sync"

	"team_portal_service/internal/chat/domain"
	errprocess "team_portal_service/pkg/err"
	"team_portal_service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SessionState per connection lifecycle
type SessionState int

const (
	// StateConnecting upgraded, waiting join
	StateConnecting SessionState = iota
	// StateJoined presence registered
	StateJoined
	// StateActive accepting chat actions
	StateActive
	// StateDisconnected closed, terminal
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	default:
		return "disconnected"
	}
}

// MessagePipeline chat mutations used by a session
type MessagePipeline interface {
	Send(ctx context.Context, sender int64, body string, replyTo *uint64) (*domain.EnrichedMessage, error)
	Edit(ctx context.Context, sender int64, id uint64, body string) (*domain.EnrichedMessage, error)
	Delete(ctx context.Context, sender int64, id uint64) error
	MarkRead(ctx context.Context, member int64, id uint64) (*domain.ReadReceipt, error)
	DisplayName(ctx context.Context, id int64) (string, bool)
}

// SessionOptions inbound rate limit of one connection
type SessionOptions struct {
	EventsPerSecond float64
	EventBurst      int
}

// SessionManager create sessions sharing one hub / presence / pipeline
type SessionManager struct {
	// presenceMu 包住 registry 異動與對應的 presence 廣播, 其他連線看到的順序與 registry 一致
	presenceMu sync.Mutex

	hub      *Hub
	presence PresenceRegistry
	messages MessagePipeline
	opts     SessionOptions
	metrics  *Metrics
}

// NewSessionManager init session manager
func NewSessionManager(hub *Hub, presence PresenceRegistry, messages MessagePipeline, opts SessionOptions, metrics *Metrics) *SessionManager {
	if opts.EventsPerSecond <= 0 {
		opts.EventsPerSecond = 20
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = 40
	}
	return &SessionManager{
		hub:      hub,
		presence: presence,
		messages: messages,
		opts:     opts,
		metrics:  metrics,
	}
}

// Presence registry used by the manager
func (m *SessionManager) Presence() PresenceRegistry {
	return m.presence
}

// Reply queue an ack frame on the connection writer
func (m *SessionManager) Reply(handle string, resp domain.WSResponse) error {
	return m.hub.Send(handle, resp)
}

// Open register a connection for an authenticated identity
func (m *SessionManager) Open(handle string, identity int64, name string) (*Session, *Connection) {
	conn := m.hub.Register(handle)
	return &Session{
		manager:  m,
		handle:   handle,
		identity: identity,
		name:     name,
		state:    StateConnecting,
		limiter:  rate.NewLimiter(rate.Limit(m.opts.EventsPerSecond), m.opts.EventBurst),
	}, conn
}

// Session chat protocol state of one connection
type Session struct {
	manager  *SessionManager
	handle   string
	identity int64
	name     string
	limiter  *rate.Limiter

	mu     sync.Mutex
	state  SessionState
	typing bool
}

// State current state
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handle process one inbound text frame, return the ack for the same connection
func (s *Session) Handle(ctx context.Context, raw []byte) domain.WSResponse {
	var req domain.WSRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return domain.WSResponse{Action: string(domain.EventError), Error: "invalid frame"}
	}

	resp := domain.WSResponse{Action: req.Action, RequestID: req.RequestID, Payload: map[string]interface{}{}}
	s.manager.metrics.recordInbound(req.Action)

	if !s.limiter.Allow() {
		resp.Error = "rate limit exceeded"
		return resp
	}

	state := s.State()
	if state == StateDisconnected {
		resp.Error = "connection closed"
		return resp
	}
	if req.Action != string(domain.Join) && state != StateActive {
		resp.Error = "join required"
		return resp
	}

	var err error
	switch domain.Action(req.Action) {
	case domain.Join:
		err = s.join(req.MemberID)

	case domain.Typing:
		s.relayTyping(ctx, req.IsTyping, req.DisplayName)

	case domain.SendMessage:
		var msg *domain.EnrichedMessage
		msg, err = s.manager.messages.Send(ctx, s.identity, req.Content, req.ReplyTo)
		if err == nil {
			resp.Payload["message"] = msg
			// 送出訊息隱含 typing(false)
			s.stopTyping()
		}

	case domain.EditMessage:
		var msg *domain.EnrichedMessage
		msg, err = s.manager.messages.Edit(ctx, s.identity, req.MessageID, req.Content)
		if err == nil {
			resp.Payload["message"] = msg
		}

	case domain.DeleteMessage:
		err = s.manager.messages.Delete(ctx, s.identity, req.MessageID)
		if err == nil {
			resp.Payload["message_id"] = req.MessageID
		}

	case domain.ReadMessage:
		var receipt *domain.ReadReceipt
		receipt, err = s.manager.messages.MarkRead(ctx, s.identity, req.MessageID)
		if err == nil {
			resp.Payload["receipt"] = receipt
		}

	default:
		err = errprocess.Validation("unknown action")
	}

	if err != nil {
		resp.Error = err.Error()
		logger.Log.Warn("websocket action failed",
			zap.Int64("member_id", s.identity),
			zap.String("action", req.Action),
			zap.String("kind", errprocess.KindOf(err).String()),
			zap.Error(err))
		return resp
	}
	resp.Success = true
	return resp
}

func (s *Session) join(memberID int64) error {
	if memberID != 0 && memberID != s.identity {
		return errprocess.Authorization("member_id does not match token")
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.state = StateJoined
	s.mu.Unlock()

	m := s.manager
	m.presenceMu.Lock()
	result := m.presence.Join(s.identity, s.handle)

	// snapshot 先送, 再加入廣播群組; enqueue 不阻塞, 持鎖期間不會卡住
	if err := m.hub.Send(s.handle, domain.NewEvent(domain.EventOnlineMembers, domain.OnlineMembersPayload{Members: result.Others})); err != nil {
		logger.Log.Warn("online-members not delivered", zap.String("handle", s.handle), zap.Error(err))
	}
	if err := m.hub.Subscribe(s.handle, s.identity); err != nil {
		m.presence.Leave(s.handle)
		m.presenceMu.Unlock()
		return err
	}
	if result.CameOnline {
		_ = m.hub.Broadcast(domain.NewEvent(domain.EventMemberOnline, domain.PresencePayload{MemberID: s.identity}), s.handle)
	}
	m.metrics.setOnline(len(m.presence.Snapshot()))
	m.presenceMu.Unlock()

	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	logger.Log.Info("member joined team chat",
		zap.Int64("member_id", s.identity),
		zap.String("handle", s.handle),
		zap.Bool("came_online", result.CameOnline))
	return nil
}

func (s *Session) relayTyping(ctx context.Context, isTyping bool, fallbackName string) {
	s.mu.Lock()
	s.typing = isTyping
	s.mu.Unlock()
	s.broadcastTyping(ctx, isTyping, fallbackName)
}

func (s *Session) stopTyping() {
	s.mu.Lock()
	wasTyping := s.typing
	s.typing = false
	s.mu.Unlock()
	if wasTyping {
		s.broadcastTyping(context.Background(), false, "")
	}
}

func (s *Session) broadcastTyping(ctx context.Context, isTyping bool, fallbackName string) {
	name, ok := s.manager.messages.DisplayName(ctx, s.identity)
	if !ok {
		name = s.name
		if name == "" {
			name = fallbackName
		}
	}
	_ = s.manager.hub.Broadcast(domain.NewEvent(domain.EventUserTyping, domain.TypingPayload{
		UserID:   s.identity,
		UserName: name,
		IsTyping: isTyping,
	}), s.handle)
}

// Close Disconnected, leave presence and broadcast member-offline when last handle
func (s *Session) Close() {
	s.mu.Lock()
	prev := s.state
	s.state = StateDisconnected
	s.mu.Unlock()

	m := s.manager
	if prev == StateDisconnected {
		return
	}
	defer m.hub.Unregister(s.handle)

	if prev == StateConnecting {
		return
	}

	s.stopTyping()
	m.presenceMu.Lock()
	result := m.presence.Leave(s.handle)
	if result.WentOffline {
		_ = m.hub.Broadcast(domain.NewEvent(domain.EventMemberOffline, domain.PresencePayload{MemberID: result.Identity}), s.handle)
	}
	m.metrics.setOnline(len(m.presence.Snapshot()))
	m.presenceMu.Unlock()

	logger.Log.Info("member left team chat",
		zap.Int64("member_id", s.identity),
		zap.String("handle", s.handle),
		zap.Bool("went_offline", result.WentOffline))
}
