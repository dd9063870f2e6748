package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"team_portal_service/internal/chat/domain"
	errprocess "team_portal_service/pkg/err"
	"team_portal_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrRejected server acked the action with success=false
var ErrRejected = errors.New("action rejected")

// ErrClosed client connection already closed
var ErrClosed = errors.New("client closed")

// Options client setting
type Options struct {
	// TypingIdle idle window, default 1s
	TypingIdle time.Duration
	// OnEvent called from the read loop after local state is updated
	OnEvent func(domain.Event)
}

// Client team chat client: one websocket plus REST for history
type Client struct {
	baseURL string
	token   string
	self    int64
	opts    Options

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	acks   map[string]chan domain.WSResponse
	online map[int64]struct{}
	closed bool

	timeline *Timeline
	typing   *TypingTracker
	emitter  *TypingEmitter
	done     chan struct{}
}

// inbound 同時可能是 event 或 ack, 先看 event 欄位
type inbound struct {
	Event   domain.EventType `json:"event"`
	Payload json.RawMessage  `json:"payload"`
}

// Login POST /api/team/login via the fiber http agent
func Login(ctx context.Context, baseURL, email, password string) (*domain.LoginResponse, error) {
	a := fiber.Post(strings.TrimRight(baseURL, "/") + "/api/team/login")
	a.JSON(domain.LoginRequest{Email: email, Password: password})
	if d, ok := ctx.Deadline(); ok {
		a.Timeout(time.Until(d))
	}

	var resp domain.LoginResponse
	code, body, errs := a.Struct(&resp)
	if len(errs) > 0 {
		return nil, errprocess.Transport(errs[0], "login")
	}
	if code != fiber.StatusOK {
		return nil, httpError(code, body)
	}
	return &resp, nil
}

// Dial open the realtime channel, token goes in the Authorization header
func Dial(ctx context.Context, baseURL, token string, self int64, opts Options) (*Client, error) {
	wsURL, err := websocketURL(baseURL)
	if err != nil {
		return nil, errprocess.Validation(err.Error())
	}

	header := http.Header{}
	header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, errprocess.Transport(err, "dial websocket")
	}

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		self:     self,
		opts:     opts,
		conn:     conn,
		acks:     make(map[string]chan domain.WSResponse),
		online:   make(map[int64]struct{}),
		timeline: NewTimeline(self),
		typing:   NewTypingTracker(opts.TypingIdle),
		done:     make(chan struct{}),
	}
	c.emitter = NewTypingEmitter(opts.TypingIdle, c.emitTyping)
	go c.readLoop()
	return c, nil
}

// Timeline local message state
func (c *Client) Timeline() *Timeline { return c.timeline }

// TypingPeers peers currently typing
func (c *Client) TypingPeers() []domain.TypingPayload { return c.typing.Typing() }

// Online members known online, self excluded
func (c *Client) Online() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.online))
	for id := range c.online {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Done closed when the read loop exits
func (c *Client) Done() <-chan struct{} { return c.done }

// Join register presence, the server answers with online-members first
func (c *Client) Join(ctx context.Context) error {
	_, err := c.request(ctx, domain.WSRequest{Action: string(domain.Join), MemberID: c.self})
	return err
}

// Keystroke local typing activity
func (c *Client) Keystroke() { c.emitter.Keystroke() }

// Send optimistic send; on failure the draft is handed back
func (c *Client) Send(ctx context.Context, body string, replyTo *uint64) (*domain.EnrichedMessage, Draft, error) {
	draft := Draft{Body: body, ReplyTo: replyTo}
	token := c.timeline.BeginSend(draft)
	// 送出即視為停止輸入
	c.emitter.MessageSent()

	resp, err := c.request(ctx, domain.WSRequest{Action: string(domain.SendMessage), Content: body, ReplyTo: replyTo})
	if err != nil {
		d, _ := c.timeline.Rollback(token)
		return nil, d, err
	}

	var msg domain.EnrichedMessage
	if err := decodePayload(resp.Payload["message"], &msg); err != nil {
		d, _ := c.timeline.Rollback(token)
		return nil, d, errprocess.Transport(err, "decode send ack")
	}
	c.timeline.Confirm(token, msg)
	return &msg, Draft{}, nil
}

// Edit own message
func (c *Client) Edit(ctx context.Context, id uint64, body string) (*domain.EnrichedMessage, error) {
	resp, err := c.request(ctx, domain.WSRequest{Action: string(domain.EditMessage), MessageID: id, Content: body})
	if err != nil {
		return nil, err
	}
	var msg domain.EnrichedMessage
	if err := decodePayload(resp.Payload["message"], &msg); err != nil {
		return nil, errprocess.Transport(err, "decode edit ack")
	}
	c.timeline.ApplyEdit(msg)
	return &msg, nil
}

// Delete own message
func (c *Client) Delete(ctx context.Context, id uint64) error {
	if _, err := c.request(ctx, domain.WSRequest{Action: string(domain.DeleteMessage), MessageID: id}); err != nil {
		return err
	}
	c.timeline.ApplyDelete(id)
	return nil
}

// MarkRead send read receipt
func (c *Client) MarkRead(ctx context.Context, id uint64) error {
	_, err := c.request(ctx, domain.WSRequest{Action: string(domain.ReadMessage), MessageID: id})
	return err
}

// List load history through REST and seed the timeline
func (c *Client) List(ctx context.Context, search string, limit, offset int) ([]domain.EnrichedMessage, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	target := c.baseURL + "/api/team/chat"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	a := fiber.Get(target)
	a.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	if d, ok := ctx.Deadline(); ok {
		a.Timeout(time.Until(d))
	}

	var msgs []domain.EnrichedMessage
	code, body, errs := a.Struct(&msgs)
	if len(errs) > 0 {
		return nil, errprocess.Transport(errs[0], "list messages")
	}
	if code != fiber.StatusOK {
		return nil, httpError(code, body)
	}
	if search == "" {
		c.timeline.Seed(msgs)
	}
	return msgs, nil
}

// Close stop typing, close the socket, wait the read loop
func (c *Client) Close() error {
	c.emitter.Stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) emitTyping(isTyping bool) {
	if err := c.write(domain.WSRequest{Action: string(domain.Typing), IsTyping: isTyping}); err != nil {
		logger.Log.Debug("typing not sent", zap.Bool("is_typing", isTyping), zap.Error(err))
	}
}

func (c *Client) request(ctx context.Context, req domain.WSRequest) (domain.WSResponse, error) {
	req.RequestID = uuid.NewString()
	ch := make(chan domain.WSResponse, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.WSResponse{}, ErrClosed
	}
	c.acks[req.RequestID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.acks, req.RequestID)
		c.mu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return domain.WSResponse{}, err
	}

	select {
	case resp := <-ch:
		if !resp.Success {
			return resp, fmt.Errorf("%w: %s", ErrRejected, resp.Error)
		}
		return resp, nil
	case <-c.done:
		return domain.WSResponse{}, ErrClosed
	case <-ctx.Done():
		return domain.WSResponse{}, errprocess.Transport(ctx.Err(), req.Action)
	}
}

// gorilla conn 只允許一個寫入者
func (c *Client) write(req domain.WSRequest) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(req); err != nil {
		return errprocess.Transport(err, "write frame")
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Log.Debug("client read loop end", zap.Error(err))
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			logger.Log.Warn("client bad frame", zap.Error(err))
			continue
		}
		if in.Event != "" {
			c.dispatch(domain.Event{Type: in.Event, Payload: in.Payload}, in.Payload)
			continue
		}

		var resp domain.WSResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.acks[resp.RequestID]
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) dispatch(ev domain.Event, raw json.RawMessage) {
	switch ev.Type {
	case domain.EventNewMessage:
		var msg domain.EnrichedMessage
		if json.Unmarshal(raw, &msg) == nil {
			c.timeline.ApplyNew(msg)
			ev.Payload = msg
		}
	case domain.EventMessageEdited:
		var msg domain.EnrichedMessage
		if json.Unmarshal(raw, &msg) == nil {
			c.timeline.ApplyEdit(msg)
			ev.Payload = msg
		}
	case domain.EventMessageDeleted:
		var p domain.MessageDeletedPayload
		if json.Unmarshal(raw, &p) == nil {
			c.timeline.ApplyDelete(p.MessageID)
			ev.Payload = p
		}
	case domain.EventMessageReadUpdate:
		var p domain.ReadUpdatePayload
		if json.Unmarshal(raw, &p) == nil {
			c.timeline.ApplyRead(p.MessageID, p.ReadBy)
			ev.Payload = p
		}
	case domain.EventUserTyping:
		var p domain.TypingPayload
		// 自己其他分頁的 typing 不顯示
		if json.Unmarshal(raw, &p) == nil && p.UserID != c.self {
			c.typing.Apply(p)
			ev.Payload = p
		}
	case domain.EventOnlineMembers:
		var p domain.OnlineMembersPayload
		if json.Unmarshal(raw, &p) == nil {
			c.mu.Lock()
			c.online = make(map[int64]struct{}, len(p.Members))
			for _, id := range p.Members {
				c.online[id] = struct{}{}
			}
			c.mu.Unlock()
			ev.Payload = p
		}
	case domain.EventMemberOnline, domain.EventMemberOffline:
		var p domain.PresencePayload
		if json.Unmarshal(raw, &p) == nil && p.MemberID != c.self {
			c.mu.Lock()
			if ev.Type == domain.EventMemberOnline {
				c.online[p.MemberID] = struct{}{}
			} else {
				delete(c.online, p.MemberID)
			}
			c.mu.Unlock()
			if ev.Type == domain.EventMemberOffline {
				c.typing.Forget(p.MemberID)
			}
			ev.Payload = p
		}
	}

	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
}

func decodePayload(v interface{}, out interface{}) error {
	if v == nil {
		return errors.New("empty payload")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

func httpError(code int, body []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &e)
	if e.Error == "" {
		e.Error = http.StatusText(code)
	}
	switch code {
	case fiber.StatusBadRequest:
		return errprocess.Validation(e.Error)
	case fiber.StatusUnauthorized, fiber.StatusForbidden:
		return errprocess.Authorization(e.Error)
	case fiber.StatusNotFound:
		return errprocess.NotFound(e.Error)
	default:
		return errprocess.Transport(errors.New(e.Error), fmt.Sprintf("http %d", code))
	}
}
