package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"team_portal_service/internal/chat/domain"
	"team_portal_service/internal/chat/repository"
	errprocess "team_portal_service/pkg/err"
	"team_portal_service/pkg/logger"

	"go.uber.org/zap"
)

// FileUpload attachment stream of SendFile
type FileUpload struct {
	Name        string
	Size        int64
	ContentType string
	Reader      io.Reader
}

// MessageOptions pipeline tuning
type MessageOptions struct {
	PersistTimeout time.Duration
	MaxUploadBytes int64
	AllowedTypes   []string
	Metrics        *Metrics
}

// MessageUseCase 寫入後廣播: persist -> enrich -> notify -> ack
// persist 失敗時不會 notify, notify 失敗只記 log
type MessageUseCase struct {
	repo      repository.MessageRepository
	members   repository.MemberRepository
	blobs     repository.BlobRepository
	notifiers []Notifier
	opts      MessageOptions
	allowed   map[string]struct{}
}

// NewMessageUseCase init message pipeline
func NewMessageUseCase(
	repo repository.MessageRepository,
	members repository.MemberRepository,
	blobs repository.BlobRepository,
	opts MessageOptions,
	notifiers ...Notifier,
) *MessageUseCase {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 * 1024 * 1024
	}
	allowed := make(map[string]struct{}, len(opts.AllowedTypes))
	for _, t := range opts.AllowedTypes {
		allowed[strings.ToLower(strings.TrimPrefix(t, "."))] = struct{}{}
	}
	return &MessageUseCase{
		repo:      repo,
		members:   members,
		blobs:     blobs,
		notifiers: notifiers,
		opts:      opts,
		allowed:   allowed,
	}
}

// Send persist a text message then broadcast new-message
func (uc *MessageUseCase) Send(ctx context.Context, sender int64, body string, replyTo *uint64) (*domain.EnrichedMessage, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errprocess.Validation("message is required")
	}

	msg, err := uc.persistMessage(ctx, "send", func(ctx context.Context) (*domain.Message, error) {
		return uc.repo.Append(ctx, domain.NewMessage{SenderID: sender, Body: body, ReplyTo: replyTo})
	})
	if err != nil {
		return nil, err
	}

	enriched := uc.enrich(ctx, *msg)
	uc.notify(ctx, domain.NewEvent(domain.EventNewMessage, enriched))
	return &enriched, nil
}

// SendFile upload attachment, persist message, broadcast new-message
func (uc *MessageUseCase) SendFile(ctx context.Context, sender int64, body string, replyTo *uint64, file FileUpload) (*domain.EnrichedMessage, error) {
	if err := uc.validateUpload(file); err != nil {
		return nil, err
	}

	msg, err := uc.persistMessage(ctx, "upload", func(ctx context.Context) (*domain.Message, error) {
		url, err := uc.blobs.Put(ctx, file.Name, file.Reader, file.Size, file.ContentType)
		if err != nil {
			return nil, err
		}
		msg, err := uc.repo.Append(ctx, domain.NewMessage{
			SenderID:   sender,
			Body:       body,
			ReplyTo:    replyTo,
			Attachment: &domain.Attachment{URL: url, Name: file.Name, Size: file.Size},
		})
		if err != nil {
			uc.discardBlob(ctx, url)
			return nil, err
		}
		return msg, nil
	})
	if err != nil {
		return nil, err
	}

	enriched := uc.enrich(ctx, *msg)
	uc.notify(ctx, domain.NewEvent(domain.EventNewMessage, enriched))
	return &enriched, nil
}

// Edit only the original sender may edit, broadcast message-edited
func (uc *MessageUseCase) Edit(ctx context.Context, sender int64, id uint64, body string) (*domain.EnrichedMessage, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errprocess.Validation("message content is required")
	}

	msg, err := uc.persistMessage(ctx, "edit", func(ctx context.Context) (*domain.Message, error) {
		return uc.repo.Edit(ctx, id, body, sender)
	})
	if err != nil {
		return nil, err
	}

	enriched := uc.enrich(ctx, *msg)
	uc.notify(ctx, domain.NewEvent(domain.EventMessageEdited, enriched))
	return &enriched, nil
}

// Delete only the original sender may delete, broadcast message-deleted
func (uc *MessageUseCase) Delete(ctx context.Context, sender int64, id uint64) error {
	_, err := uc.persistMessage(ctx, "delete", func(ctx context.Context) (*domain.Message, error) {
		ok, err := uc.repo.Delete(ctx, id, sender)
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, nil
		}
		// 區分不存在與非本人
		if _, err := uc.repo.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, errprocess.Authorization("only the sender can delete this message")
	})
	if err != nil {
		return err
	}

	uc.notify(ctx, domain.NewEvent(domain.EventMessageDeleted, domain.MessageDeletedPayload{MessageID: id}))
	return nil
}

// MarkRead store read receipt, broadcast message-read-update
func (uc *MessageUseCase) MarkRead(ctx context.Context, member int64, id uint64) (*domain.ReadReceipt, error) {
	pctx, cancel := context.WithTimeout(ctx, uc.opts.PersistTimeout)
	defer cancel()

	receipt, err := uc.repo.MarkRead(pctx, id, member)
	uc.opts.Metrics.recordMessage("read", err)
	if err != nil {
		return nil, asPersistence(err, "mark read")
	}

	uc.notify(ctx, domain.NewEvent(domain.EventMessageReadUpdate, domain.ReadUpdatePayload{MessageID: id, ReadBy: member}))
	return receipt, nil
}

// List chronological page, or search result when filter.Search set
func (uc *MessageUseCase) List(ctx context.Context, filter domain.ListFilter) ([]domain.EnrichedMessage, error) {
	pctx, cancel := context.WithTimeout(ctx, uc.opts.PersistTimeout)
	defer cancel()

	msgs, err := uc.repo.List(pctx, filter)
	if err != nil {
		return nil, asPersistence(err, "list messages")
	}
	return uc.enrichAll(ctx, msgs), nil
}

// Search substring search, most recent first
func (uc *MessageUseCase) Search(ctx context.Context, query string, limit int) ([]domain.EnrichedMessage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errprocess.Validation("search query required")
	}
	return uc.List(ctx, domain.ListFilter{Search: query, Limit: limit})
}

// DisplayName member name for rendering, ok false when directory has no answer
func (uc *MessageUseCase) DisplayName(ctx context.Context, id int64) (string, bool) {
	member, err := uc.members.FindByID(ctx, id)
	if err != nil || member == nil {
		return "", false
	}
	return member.Name, true
}

func (uc *MessageUseCase) persistMessage(ctx context.Context, action string, fn func(ctx context.Context) (*domain.Message, error)) (*domain.Message, error) {
	pctx, cancel := context.WithTimeout(ctx, uc.opts.PersistTimeout)
	defer cancel()

	msg, err := fn(pctx)
	uc.opts.Metrics.recordMessage(action, err)
	if err != nil {
		err = asPersistence(err, action)
		if errprocess.KindOf(err) == errprocess.KindPersistence {
			logger.Log.Error("chat persist failed", zap.String("action", action), zap.Error(err))
		}
		return nil, err
	}
	return msg, nil
}

// discardBlob 訊息沒寫入時移除已上傳的檔案, 失敗只記 log
func (uc *MessageUseCase) discardBlob(ctx context.Context, url string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.opts.PersistTimeout)
	defer cancel()
	if err := uc.blobs.Remove(rctx, url); err != nil {
		logger.Log.Warn("orphaned attachment", zap.String("url", url), zap.Error(err))
	}
}

func (uc *MessageUseCase) validateUpload(file FileUpload) error {
	if file.Reader == nil || file.Size <= 0 {
		return errprocess.Validation("no file uploaded")
	}
	if file.Size > uc.opts.MaxUploadBytes {
		return errprocess.Validation(fmt.Sprintf("file exceeds %d bytes", uc.opts.MaxUploadBytes))
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Name), "."))
	if _, ok := uc.allowed[ext]; !ok {
		return errprocess.Validation("invalid file type. only images, PDFs, and documents are allowed")
	}
	return nil
}

func (uc *MessageUseCase) enrich(ctx context.Context, msg domain.Message) domain.EnrichedMessage {
	out := domain.EnrichedMessage{Message: msg}
	member, err := uc.members.FindByID(ctx, msg.SenderID)
	if err != nil {
		logger.Log.Warn("sender lookup failed", zap.Int64("sender_id", msg.SenderID), zap.Error(err))
		return out
	}
	out.SenderName = member.Name
	out.SenderRole = member.Role
	return out
}

func (uc *MessageUseCase) enrichAll(ctx context.Context, msgs []domain.Message) []domain.EnrichedMessage {
	seen := make(map[int64]*domain.Member)
	out := make([]domain.EnrichedMessage, 0, len(msgs))
	for _, msg := range msgs {
		member, ok := seen[msg.SenderID]
		if !ok {
			m, err := uc.members.FindByID(ctx, msg.SenderID)
			if err != nil {
				logger.Log.Debug("sender lookup failed", zap.Int64("sender_id", msg.SenderID), zap.Error(err))
			}
			member = m
			seen[msg.SenderID] = m
		}

		e := domain.EnrichedMessage{Message: msg}
		if member != nil {
			e.SenderName = member.Name
			e.SenderRole = member.Role
		}
		out = append(out, e)
	}
	return out
}

// notify 同步呼叫但不阻塞 (hub 與 kafka writer 皆為非阻塞), 維持同一 sender 的順序
func (uc *MessageUseCase) notify(ctx context.Context, event domain.Event) {
	nctx := context.WithoutCancel(ctx)
	for _, n := range uc.notifiers {
		if err := n.Notify(nctx, event); err != nil {
			logger.Log.Warn("notify failed",
				zap.String("event", string(event.Type)),
				zap.String("kind", errprocess.KindOf(err).String()),
				zap.Error(err))
		}
	}
}

// asPersistence untyped store error is treated as persistence failure
func asPersistence(err error, msg string) error {
	if errprocess.KindOf(err) != errprocess.KindUnknown {
		return err
	}
	return errprocess.Persistence(err, msg)
}
