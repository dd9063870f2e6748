package client

import (
	"sort"
	"sync"

	"team_portal_service/internal/chat/domain"

	"github.com/google/uuid"
)

// Draft text of an optimistic send, returned on rollback to refill the input
type Draft struct {
	Body    string
	ReplyTo *uint64
}

// Entry one rendered message with its display status
type Entry struct {
	Message domain.EnrichedMessage
	Status  domain.DeliveryStatus
	// Token set while the entry is an unconfirmed optimistic send
	Token string
}

type pendingSend struct {
	draft Draft
	seq   int
}

// Timeline client side message list
// 以 store id 去重, 不以內容去重
type Timeline struct {
	mu      sync.RWMutex
	self    int64
	byID    map[uint64]*Entry
	pending map[string]*pendingSend
	seq     int
}

// NewTimeline timeline viewed by member self
func NewTimeline(self int64) *Timeline {
	return &Timeline{
		self:    self,
		byID:    make(map[uint64]*Entry),
		pending: make(map[string]*pendingSend),
	}
}

// Seed replace confirmed messages with a loaded page
// own messages start as sent, others as delivered
func (t *Timeline) Seed(msgs []domain.EnrichedMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.byID = make(map[uint64]*Entry, len(msgs))
	for _, m := range msgs {
		t.byID[m.ID] = &Entry{Message: m, Status: t.initialStatus(m)}
	}
}

// BeginSend add an optimistic entry, return its token
func (t *Timeline) BeginSend(d Draft) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	token := uuid.NewString()
	t.pending[token] = &pendingSend{draft: d, seq: t.seq}
	return token
}

// Confirm bind the optimistic entry to the stored message
// 若 echo 先到, 保留同一筆
func (t *Timeline) Confirm(token string, msg domain.EnrichedMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.pending, token)
	if e, ok := t.byID[msg.ID]; ok {
		e.Status = e.Status.Advance(domain.StatusSent)
		return
	}
	t.byID[msg.ID] = &Entry{Message: msg, Status: domain.StatusSent}
}

// Rollback drop the optimistic entry, return its draft
func (t *Timeline) Rollback(token string) (Draft, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[token]
	if !ok {
		return Draft{}, false
	}
	delete(t.pending, token)
	return p.draft, true
}

// ApplyNew new-message event
func (t *Timeline) ApplyNew(msg domain.EnrichedMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byID[msg.ID]; ok {
		return
	}
	t.byID[msg.ID] = &Entry{Message: msg, Status: t.initialStatus(msg)}
}

// ApplyEdit message-edited event, unknown id ignored
func (t *Timeline) ApplyEdit(msg domain.EnrichedMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[msg.ID]
	if !ok {
		return
	}
	e.Message.Body = msg.Body
	e.Message.IsEdited = msg.IsEdited
	e.Message.UpdatedAt = msg.UpdatedAt
}

// ApplyDelete message-deleted event
func (t *Timeline) ApplyDelete(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
}

// ApplyRead message-read-update event, own message read by someone else becomes read
func (t *Timeline) ApplyRead(id uint64, readBy int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[id]
	if !ok || readBy == t.self || e.Message.SenderID != t.self {
		return
	}
	e.Status = e.Status.Advance(domain.StatusRead)
}

// Status display status of a stored message
func (t *Timeline) Status(id uint64) (domain.DeliveryStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.byID[id]
	if !ok {
		return "", false
	}
	return e.Status, true
}

// Entries confirmed messages by (CreatedAt, ID), then pending sends in send order
func (t *Timeline) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.byID)+len(t.pending))
	for _, e := range t.byID {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Message, out[j].Message
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	pending := make([]Entry, 0, len(t.pending))
	seqs := make(map[string]int, len(t.pending))
	for token, p := range t.pending {
		seqs[token] = p.seq
		pending = append(pending, Entry{
			Message: domain.EnrichedMessage{Message: domain.Message{SenderID: t.self, Body: p.draft.Body, ReplyTo: p.draft.ReplyTo}},
			Status:  domain.StatusSending,
			Token:   token,
		})
	}
	sort.Slice(pending, func(i, j int) bool { return seqs[pending[i].Token] < seqs[pending[j].Token] })

	return append(out, pending...)
}

func (t *Timeline) initialStatus(m domain.EnrichedMessage) domain.DeliveryStatus {
	if m.SenderID == t.self {
		return domain.StatusSent
	}
	return domain.StatusDelivered
}
