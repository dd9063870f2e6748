package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"team_portal_service/internal/chat/domain"
	errprocess "team_portal_service/pkg/err"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository durable team chat store
type MessageRepository interface {
	// Append 寫入新訊息, id 與時間由 store 指定
	Append(ctx context.Context, msg domain.NewMessage) (*domain.Message, error)
	// List 無搜尋時依時間由舊到新, 有搜尋時由新到舊
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Message, error)
	// Edit 只有原發送者可修改
	Edit(ctx context.Context, id uint64, body string, requester int64) (*domain.Message, error)
	// Delete 只有原發送者可刪除, 找不到或無權限回傳 false
	Delete(ctx context.Context, id uint64, requester int64) (bool, error)
	FindByID(ctx context.Context, id uint64) (*domain.Message, error)
	// MarkRead 寫入已讀紀錄, 同一成員重複已讀不新增
	MarkRead(ctx context.Context, id uint64, member int64) (*domain.ReadReceipt, error)
}

type messageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMessageRepository create a gorm MessageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return NewMessageRepositoryWithClock(db, time.Now)
}

// NewMessageRepositoryWithClock create MessageRepository with custom clock
func NewMessageRepositoryWithClock(db *gorm.DB, now func() time.Time) MessageRepository {
	return &messageRepository{db: db, now: now}
}

// AutoMigrate create team_chats & message_read_status
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Message{}, &domain.ReadReceipt{})
}

// FileMessageBody default body of a file only message
func FileMessageBody(fileName string) string {
	return "Sent a file: " + fileName
}

func (r *messageRepository) Append(ctx context.Context, in domain.NewMessage) (*domain.Message, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" && in.Attachment == nil {
		return nil, errprocess.Validation("message is required")
	}
	if in.SenderID <= 0 {
		return nil, errprocess.Validation("sender is required")
	}

	now := r.now().UTC()
	msg := &domain.Message{
		SenderID:  in.SenderID,
		Body:      in.Body,
		ReplyTo:   in.ReplyTo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if a := in.Attachment; a != nil {
		if body == "" {
			msg.Body = FileMessageBody(a.Name)
		}
		msg.FileURL = &a.URL
		msg.FileName = &a.Name
		msg.FileSize = &a.Size
	}

	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, errprocess.Persistence(err, "append message")
	}
	return msg, nil
}

func (r *messageRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Message, error) {
	filter = filter.Normalize()
	var msgs []domain.Message

	query := r.db.WithContext(ctx).Model(&domain.Message{})
	if filter.Search != "" {
		query = query.Where("message LIKE ? ESCAPE '\\'", "%"+escapeLike(filter.Search)+"%")
	}

	err := query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&msgs).Error
	if err != nil {
		return nil, errprocess.Persistence(err, "list messages")
	}

	// 搜尋結果保持新到舊, 一般列表反轉成舊到新
	if filter.Search == "" {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	return msgs, nil
}

func (r *messageRepository) Edit(ctx context.Context, id uint64, body string, requester int64) (*domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errprocess.Validation("message content is required")
	}

	// sender 條件與 update 同一語句, 不做先讀後寫
	res := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND sender_id = ?", id, requester).
		Updates(map[string]interface{}{
			"message":    body,
			"is_edited":  true,
			"updated_at": r.now().UTC(),
		})
	if res.Error != nil {
		return nil, errprocess.Persistence(res.Error, "edit message")
	}
	if res.RowsAffected == 0 {
		return nil, r.missingOrForbidden(ctx, id)
	}

	return r.FindByID(ctx, id)
}

func (r *messageRepository) Delete(ctx context.Context, id uint64, requester int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND sender_id = ?", id, requester).
		Delete(&domain.Message{})
	if res.Error != nil {
		return false, errprocess.Persistence(res.Error, "delete message")
	}
	return res.RowsAffected > 0, nil
}

func (r *messageRepository) FindByID(ctx context.Context, id uint64) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errprocess.NotFound("message not found")
	}
	if err != nil {
		return nil, errprocess.Persistence(err, "find message")
	}
	return &msg, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, id uint64, member int64) (*domain.ReadReceipt, error) {
	if _, err := r.FindByID(ctx, id); err != nil {
		return nil, err
	}

	receipt := &domain.ReadReceipt{
		MessageID: id,
		MemberID:  member,
		ReadAt:    r.now().UTC(),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(receipt).Error
	if err != nil {
		return nil, errprocess.Persistence(err, "mark message read")
	}

	var stored domain.ReadReceipt
	err = r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", id, member).
		Take(&stored).Error
	if err != nil {
		return nil, errprocess.Persistence(err, "load read receipt")
	}
	return &stored, nil
}

func (r *messageRepository) missingOrForbidden(ctx context.Context, id uint64) error {
	_, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return errprocess.Authorization("only the sender can modify this message")
}

// escapeLike escape LIKE wildcard, search text match as plain substring
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
