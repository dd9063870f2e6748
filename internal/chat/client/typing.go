package client

import (
	"sort"
	"sync"
	"time"

	"team_portal_service/internal/chat/domain"
)

// DefaultTypingIdle idle window of a typing burst
const DefaultTypingIdle = time.Second

// TypingEmitter debounce local keystrokes into typing(true)/typing(false)
// 輸入期間每 idle/2 重送 typing(true), 對方的 TypingTracker 不會在 burst 中途過期
type TypingEmitter struct {
	// emitMu 讓 emit 依序呼叫, heartbeat 不會排在 typing(false) 之後
	emitMu sync.Mutex

	mu     sync.Mutex
	idle   time.Duration
	emit   func(isTyping bool)
	active bool
	gen    int
	burst  int
	timer  *time.Timer
	beat   *time.Timer
}

// NewTypingEmitter emit is called outside the state lock, one call at a time
func NewTypingEmitter(idle time.Duration, emit func(isTyping bool)) *TypingEmitter {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingEmitter{idle: idle, emit: emit}
}

// Keystroke typing(true) at burst start, re-arm the idle timer
func (e *TypingEmitter) Keystroke() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	start := !e.active
	e.active = true
	e.gen++
	gen := e.gen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.idle, func() { e.expire(gen) })
	if start {
		e.burst++
		burst := e.burst
		e.beat = time.AfterFunc(e.heartbeat(), func() { e.heartbeatTick(burst) })
	}
	e.mu.Unlock()

	if start {
		e.emit(true)
	}
}

// MessageSent end the burst immediately
func (e *TypingEmitter) MessageSent() {
	e.stop()
}

// Stop end the burst, used on close
func (e *TypingEmitter) Stop() {
	e.stop()
}

func (e *TypingEmitter) heartbeat() time.Duration {
	return e.idle / 2
}

func (e *TypingEmitter) heartbeatTick(burst int) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if !e.active || burst != e.burst {
		e.mu.Unlock()
		return
	}
	e.beat = time.AfterFunc(e.heartbeat(), func() { e.heartbeatTick(burst) })
	e.mu.Unlock()

	e.emit(true)
}

func (e *TypingEmitter) expire(gen int) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if gen != e.gen || !e.active {
		e.mu.Unlock()
		return
	}
	e.endLocked()
	e.mu.Unlock()

	e.emit(false)
}

func (e *TypingEmitter) stop() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	wasActive := e.active
	e.endLocked()
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()

	if wasActive {
		e.emit(false)
	}
}

func (e *TypingEmitter) endLocked() {
	e.active = false
	if e.beat != nil {
		e.beat.Stop()
		e.beat = nil
	}
}

type typingState struct {
	name    string
	expires time.Time
}

// TypingTracker peers currently typing, keyed by user id
// 沒收到 typing(false) 也會在 ttl 後清除
type TypingTracker struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	peers map[int64]typingState
}

// NewTypingTracker create tracker with ttl
func NewTypingTracker(ttl time.Duration) *TypingTracker {
	return NewTypingTrackerWithClock(ttl, time.Now)
}

// NewTypingTrackerWithClock create tracker with custom clock
func NewTypingTrackerWithClock(ttl time.Duration, now func() time.Time) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingIdle
	}
	return &TypingTracker{ttl: ttl, now: now, peers: make(map[int64]typingState)}
}

// Apply user-typing event
func (t *TypingTracker) Apply(p domain.TypingPayload) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !p.IsTyping {
		delete(t.peers, p.UserID)
		return
	}
	t.peers[p.UserID] = typingState{name: p.UserName, expires: t.now().Add(t.ttl)}
}

// Forget drop a peer, used on member-offline
func (t *TypingTracker) Forget(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, userID)
}

// Typing peers still inside the ttl, sorted by id
func (t *TypingTracker) Typing() []domain.TypingPayload {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	out := make([]domain.TypingPayload, 0, len(t.peers))
	for id, st := range t.peers {
		if !now.Before(st.expires) {
			delete(t.peers, id)
			continue
		}
		out = append(out, domain.TypingPayload{UserID: id, UserName: st.name, IsTyping: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
