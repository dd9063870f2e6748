package app

import (
	"context"
	"io"
	"sync"

	"team_portal_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Append(ctx context.Context, msg domain.NewMessage) (*domain.Message, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Message, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepository) Edit(ctx context.Context, id uint64, body string, requester int64) (*domain.Message, error) {
	args := m.Called(ctx, id, body, requester)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepository) Delete(ctx context.Context, id uint64, requester int64) (bool, error) {
	args := m.Called(ctx, id, requester)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepository) FindByID(ctx context.Context, id uint64) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepository) MarkRead(ctx context.Context, id uint64, member int64) (*domain.ReadReceipt, error) {
	args := m.Called(ctx, id, member)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ReadReceipt), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMemberRepository Mock MemberRepository
type MockMemberRepository struct {
	mock.Mock
}

func (m *MockMemberRepository) FindByID(ctx context.Context, id int64) (*domain.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Member), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMemberRepository) FindByEmail(ctx context.Context, email string) (*domain.Member, error) {
	args := m.Called(ctx, email)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Member), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockBlobRepository Mock BlobRepository
type MockBlobRepository struct {
	mock.Mock
}

func (m *MockBlobRepository) Put(ctx context.Context, fileName string, r io.Reader, size int64, contentType string) (string, error) {
	args := m.Called(ctx, fileName, r, size, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockBlobRepository) Remove(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

// recordingNotifier keep every notified event
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingNotifier) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// MockMessagePipeline Mock MessagePipeline
type MockMessagePipeline struct {
	mock.Mock
}

func (m *MockMessagePipeline) Send(ctx context.Context, sender int64, body string, replyTo *uint64) (*domain.EnrichedMessage, error) {
	args := m.Called(ctx, sender, body, replyTo)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.EnrichedMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessagePipeline) Edit(ctx context.Context, sender int64, id uint64, body string) (*domain.EnrichedMessage, error) {
	args := m.Called(ctx, sender, id, body)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.EnrichedMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessagePipeline) Delete(ctx context.Context, sender int64, id uint64) error {
	return m.Called(ctx, sender, id).Error(0)
}

func (m *MockMessagePipeline) MarkRead(ctx context.Context, member int64, id uint64) (*domain.ReadReceipt, error) {
	args := m.Called(ctx, member, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ReadReceipt), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessagePipeline) DisplayName(ctx context.Context, id int64) (string, bool) {
	args := m.Called(ctx, id)
	return args.String(0), args.Bool(1)
}
