package app

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"team_portal_service/internal/chat/domain"
	errprocess "team_portal_service/pkg/err"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	repo     *MockMessageRepository
	members  *MockMemberRepository
	blobs    *MockBlobRepository
	notifier *recordingNotifier
	uc       *MessageUseCase
}

func newPipelineFixture() *pipelineFixture {
	f := &pipelineFixture{
		repo:     new(MockMessageRepository),
		members:  new(MockMemberRepository),
		blobs:    new(MockBlobRepository),
		notifier: &recordingNotifier{},
	}
	f.uc = NewMessageUseCase(f.repo, f.members, f.blobs, MessageOptions{
		PersistTimeout: time.Second,
		MaxUploadBytes: 1024,
		AllowedTypes:   []string{"png", "pdf"},
	}, f.notifier)
	return f
}

func storedMessage(id uint64, sender int64, body string) *domain.Message {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Message{ID: id, SenderID: sender, Body: body, CreatedAt: now, UpdatedAt: now}
}

// 測試 send 成功: persist -> enrich -> notify
func TestMessageUseCase_Send(t *testing.T) {
	f := newPipelineFixture()
	f.repo.On("Append", mock.Anything, domain.NewMessage{SenderID: 1, Body: "hello"}).Return(storedMessage(1, 1, "hello"), nil)
	f.members.On("FindByID", mock.Anything, int64(1)).Return(&domain.Member{ID: 1, Name: "Alice", Role: "ceo"}, nil)

	got, err := f.uc.Send(context.Background(), 1, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.ID)
	assert.Equal(t, "Alice", got.SenderName)
	assert.Equal(t, "ceo", got.SenderRole)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventNewMessage, events[0].Type)
	payload := events[0].Payload.(domain.EnrichedMessage)
	assert.Equal(t, "Alice", payload.SenderName)
	f.repo.AssertExpectations(t)
}

func TestMessageUseCase_SendEmptyRejected(t *testing.T) {
	f := newPipelineFixture()

	_, err := f.uc.Send(context.Background(), 1, "  ", nil)
	assert.ErrorIs(t, err, errprocess.ErrValidation)
	f.repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	assert.Empty(t, f.notifier.Events())
}

// persist 失敗不可廣播
func TestMessageUseCase_SendPersistenceFailureNoBroadcast(t *testing.T) {
	f := newPipelineFixture()
	f.repo.On("Append", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := f.uc.Send(context.Background(), 1, "hello", nil)
	assert.ErrorIs(t, err, errprocess.ErrPersistence)
	assert.Empty(t, f.notifier.Events())
	f.members.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestMessageUseCase_SendTimeoutNoBroadcast(t *testing.T) {
	f := newPipelineFixture()
	f.uc.opts.PersistTimeout = 20 * time.Millisecond
	f.repo.On("Append", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	_, err := f.uc.Send(context.Background(), 1, "hello", nil)
	assert.ErrorIs(t, err, errprocess.ErrPersistence)
	assert.Equal(t, 503, errprocess.StatusCode(err))
	assert.Empty(t, f.notifier.Events())
}

// notify 失敗不影響呼叫端
func TestMessageUseCase_SendNotifyFailureSwallowed(t *testing.T) {
	f := newPipelineFixture()
	f.notifier.err = errprocess.Transport(errors.New("hub down"), "broadcast")
	f.repo.On("Append", mock.Anything, mock.Anything).Return(storedMessage(3, 1, "hi"), nil)
	f.members.On("FindByID", mock.Anything, int64(1)).Return(&domain.Member{ID: 1, Name: "Alice"}, nil)

	got, err := f.uc.Send(context.Background(), 1, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.ID)
}

func TestMessageUseCase_SendDirectoryDownStillBroadcasts(t *testing.T) {
	f := newPipelineFixture()
	f.repo.On("Append", mock.Anything, mock.Anything).Return(storedMessage(4, 9, "hi"), nil)
	f.members.On("FindByID", mock.Anything, int64(9)).Return(nil, errors.New("pg down"))

	got, err := f.uc.Send(context.Background(), 9, "hi", nil)
	require.NoError(t, err)
	assert.Empty(t, got.SenderName)
	assert.Len(t, f.notifier.Events(), 1)
}

func TestMessageUseCase_EditUnauthorized(t *testing.T) {
	f := newPipelineFixture()
	f.repo.On("Edit", mock.Anything, uint64(1), "hacked", int64(2)).Return(nil, errprocess.Authorization("not sender"))

	_, err := f.uc.Edit(context.Background(), 2, 1, "hacked")
	assert.ErrorIs(t, err, errprocess.ErrAuthorization)
	assert.Equal(t, 403, errprocess.StatusCode(err))
	assert.Empty(t, f.notifier.Events())
}

func TestMessageUseCase_Edit(t *testing.T) {
	f := newPipelineFixture()
	edited := storedMessage(1, 1, "hello again")
	edited.IsEdited = true
	f.repo.On("Edit", mock.Anything, uint64(1), "hello again", int64(1)).Return(edited, nil)
	f.members.On("FindByID", mock.Anything, int64(1)).Return(&domain.Member{ID: 1, Name: "Alice"}, nil)

	got, err := f.uc.Edit(context.Background(), 1, 1, "hello again")
	require.NoError(t, err)
	assert.True(t, got.IsEdited)
	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventMessageEdited, events[0].Type)
}

func TestMessageUseCase_Delete(t *testing.T) {
	tests := []struct {
		name     string
		deleted  bool
		lookup   error
		wantErr  error
		notified int
	}{
		{name: "owner", deleted: true, notified: 1},
		{name: "missing", deleted: false, lookup: errprocess.NotFound("message not found"), wantErr: errprocess.ErrNotFound},
		{name: "not owner", deleted: false, wantErr: errprocess.ErrAuthorization},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture()
			f.repo.On("Delete", mock.Anything, uint64(5), int64(1)).Return(tt.deleted, nil)
			if !tt.deleted {
				if tt.lookup != nil {
					f.repo.On("FindByID", mock.Anything, uint64(5)).Return(nil, tt.lookup)
				} else {
					f.repo.On("FindByID", mock.Anything, uint64(5)).Return(storedMessage(5, 2, "x"), nil)
				}
			}

			err := f.uc.Delete(context.Background(), 1, 5)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			events := f.notifier.Events()
			require.Len(t, events, tt.notified)
			if tt.notified > 0 {
				assert.Equal(t, domain.EventMessageDeleted, events[0].Type)
				assert.Equal(t, domain.MessageDeletedPayload{MessageID: 5}, events[0].Payload)
			}
		})
	}
}

func TestMessageUseCase_MarkRead(t *testing.T) {
	f := newPipelineFixture()
	f.repo.On("MarkRead", mock.Anything, uint64(7), int64(2)).Return(&domain.ReadReceipt{ID: 1, MessageID: 7, MemberID: 2}, nil)

	receipt, err := f.uc.MarkRead(context.Background(), 2, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), receipt.MessageID)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventMessageReadUpdate, events[0].Type)
	assert.Equal(t, domain.ReadUpdatePayload{MessageID: 7, ReadBy: 2}, events[0].Payload)
}

func TestMessageUseCase_SendFile(t *testing.T) {
	f := newPipelineFixture()
	body := bytes.NewBufferString("png-bytes")
	f.blobs.On("Put", mock.Anything, "a.png", body, int64(9), "image/png").Return("http://blob/chat/x.png", nil)
	f.repo.On("Append", mock.Anything, mock.MatchedBy(func(in domain.NewMessage) bool {
		return in.Attachment != nil && in.Attachment.URL == "http://blob/chat/x.png" && in.Attachment.Size == 9
	})).Return(&domain.Message{ID: 2, SenderID: 1, Body: "Sent a file: a.png"}, nil)
	f.members.On("FindByID", mock.Anything, int64(1)).Return(&domain.Member{ID: 1, Name: "Alice"}, nil)

	got, err := f.uc.SendFile(context.Background(), 1, "", nil, FileUpload{Name: "a.png", Size: 9, ContentType: "image/png", Reader: body})
	require.NoError(t, err)
	assert.Equal(t, "Sent a file: a.png", got.Body)
	assert.Len(t, f.notifier.Events(), 1)
}

func TestMessageUseCase_SendFileValidation(t *testing.T) {
	f := newPipelineFixture()
	r := bytes.NewBufferString("x")

	_, err := f.uc.SendFile(context.Background(), 1, "", nil, FileUpload{Name: "a.exe", Size: 1, Reader: r})
	assert.ErrorIs(t, err, errprocess.ErrValidation)

	_, err = f.uc.SendFile(context.Background(), 1, "", nil, FileUpload{Name: "a.png", Size: 4096, Reader: r})
	assert.ErrorIs(t, err, errprocess.ErrValidation)

	_, err = f.uc.SendFile(context.Background(), 1, "", nil, FileUpload{Name: "a.png"})
	assert.ErrorIs(t, err, errprocess.ErrValidation)

	f.blobs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMessageUseCase_SendFileUploadFailure(t *testing.T) {
	f := newPipelineFixture()
	f.blobs.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errprocess.Persistence(errors.New("minio down"), "upload attachment"))

	_, err := f.uc.SendFile(context.Background(), 1, "", nil, FileUpload{Name: "a.pdf", Size: 3, Reader: bytes.NewBufferString("pdf")})
	assert.ErrorIs(t, err, errprocess.ErrPersistence)
	f.repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	assert.Empty(t, f.notifier.Events())
}

func TestMessageUseCase_SendFileStoreFailureRemovesBlob(t *testing.T) {
	tests := []struct {
		name      string
		removeErr error
	}{
		{"removed", nil},
		{"remove failed", errors.New("minio down")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture()
			f.blobs.On("Put", mock.Anything, "a.pdf", mock.Anything, int64(3), mock.Anything).Return("http://blob/chat/x.pdf", nil)
			f.repo.On("Append", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
			f.blobs.On("Remove", mock.Anything, "http://blob/chat/x.pdf").Return(tt.removeErr).Once()

			_, err := f.uc.SendFile(context.Background(), 1, "", nil, FileUpload{Name: "a.pdf", Size: 3, Reader: bytes.NewBufferString("pdf")})
			assert.ErrorIs(t, err, errprocess.ErrPersistence)
			assert.Empty(t, f.notifier.Events())
			f.blobs.AssertExpectations(t)
		})
	}
}

func TestMessageUseCase_ListEnrichesOncePerSender(t *testing.T) {
	f := newPipelineFixture()
	f.repo.On("List", mock.Anything, domain.ListFilter{}).Return([]domain.Message{
		*storedMessage(1, 1, "a"), *storedMessage(2, 2, "b"), *storedMessage(3, 1, "c"),
	}, nil)
	f.members.On("FindByID", mock.Anything, int64(1)).Return(&domain.Member{ID: 1, Name: "Alice"}, nil).Once()
	f.members.On("FindByID", mock.Anything, int64(2)).Return(&domain.Member{ID: 2, Name: "Bob"}, nil).Once()

	got, err := f.uc.List(context.Background(), domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Alice", got[0].SenderName)
	assert.Equal(t, "Bob", got[1].SenderName)
	assert.Equal(t, "Alice", got[2].SenderName)
	f.members.AssertExpectations(t)
}

func TestMessageUseCase_SearchRequiresQuery(t *testing.T) {
	f := newPipelineFixture()
	_, err := f.uc.Search(context.Background(), "", 10)
	assert.ErrorIs(t, err, errprocess.ErrValidation)
}

func TestMessageUseCase_DisplayName(t *testing.T) {
	f := newPipelineFixture()
	f.members.On("FindByID", mock.Anything, int64(1)).Return(&domain.Member{ID: 1, Name: "Alice"}, nil)
	f.members.On("FindByID", mock.Anything, int64(2)).Return(nil, errprocess.NotFound("no member"))

	name, ok := f.uc.DisplayName(context.Background(), 1)
	assert.True(t, ok)
	assert.Equal(t, "Alice", name)

	_, ok = f.uc.DisplayName(context.Background(), 2)
	assert.False(t, ok)
}
