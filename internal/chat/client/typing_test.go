package client

import (
	"sync"
	"testing"
	"time"

	"team_portal_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
)

type emitRecorder struct {
	mu    sync.Mutex
	calls []bool
}

func (r *emitRecorder) emit(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, v)
}

func (r *emitRecorder) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.calls...)
}

// transitions heartbeat 重送的 true 合併成一次
func (r *emitRecorder) transitions() []bool {
	var out []bool
	for _, v := range r.get() {
		if len(out) == 0 || out[len(out)-1] != v {
			out = append(out, v)
		}
	}
	return out
}

func TestTypingEmitterBurstThenIdle(t *testing.T) {
	rec := &emitRecorder{}
	e := NewTypingEmitter(50*time.Millisecond, rec.emit)

	for i := 0; i < 5; i++ {
		e.Keystroke()
	}
	assert.Equal(t, []bool{true}, rec.get())

	assert.Eventually(t, func() bool {
		return len(rec.transitions()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.transitions())

	// 新的一輪
	e.Keystroke()
	assert.Eventually(t, func() bool { return len(rec.transitions()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false, true, false}, rec.transitions())

	// burst 結束後不再有 heartbeat
	n := len(rec.get())
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, rec.get(), n)
}

func TestTypingEmitterHeartbeatKeepsPeerTyping(t *testing.T) {
	const idle = 200 * time.Millisecond
	tr := NewTypingTracker(idle)
	rec := &emitRecorder{}
	e := NewTypingEmitter(idle, func(v bool) {
		rec.emit(v)
		tr.Apply(domain.TypingPayload{UserID: 1, UserName: "Alice", IsTyping: v})
	})

	// 連續輸入超過 ttl 數倍
	deadline := time.Now().Add(5 * idle)
	for time.Now().Before(deadline) {
		e.Keystroke()
		time.Sleep(idle / 5)
	}

	assert.Len(t, tr.Typing(), 1)
	assert.NotContains(t, rec.get(), false)
	trues := 0
	for _, v := range rec.get() {
		if v {
			trues++
		}
	}
	assert.GreaterOrEqual(t, trues, 3)

	e.MessageSent()
	assert.Empty(t, tr.Typing())
	assert.Equal(t, []bool{true, false}, rec.transitions())
}

func TestTypingEmitterMessageSent(t *testing.T) {
	rec := &emitRecorder{}
	e := NewTypingEmitter(time.Hour, rec.emit)

	e.MessageSent()
	assert.Empty(t, rec.get())

	e.Keystroke()
	e.MessageSent()
	assert.Equal(t, []bool{true, false}, rec.get())

	e.Stop()
	assert.Equal(t, []bool{true, false}, rec.get())
}

func TestTypingTrackerExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tr := NewTypingTrackerWithClock(time.Second, clock)

	tr.Apply(domain.TypingPayload{UserID: 2, UserName: "Bob", IsTyping: true})
	tr.Apply(domain.TypingPayload{UserID: 3, UserName: "Bob", IsTyping: true})
	assert.Len(t, tr.Typing(), 2)

	tr.Apply(domain.TypingPayload{UserID: 3, IsTyping: false})
	got := tr.Typing()
	assert.Equal(t, []domain.TypingPayload{{UserID: 2, UserName: "Bob", IsTyping: true}}, got)

	// typing(false) 遺失, ttl 後仍清除
	now = now.Add(time.Second)
	assert.Empty(t, tr.Typing())
}
