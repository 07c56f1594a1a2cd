package service

import (
	"context"
	"errors"
	"time"

	"radiochat/internal/models"
	"radiochat/internal/store"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// MessageService 提供按游标分页的历史消息查询。
type MessageService struct {
	store *store.Store
}

func NewMessageService(st *store.Store) *MessageService {
	return &MessageService{store: st}
}

// MessageDTO 是对外输出的消息数据，字段与实时推送的 message 事件一致。
type MessageDTO struct {
	ID          uint64    `json:"id"`
	RoomID      string    `json:"roomId"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Ciphertext  string    `json:"ciphertext"`
	MessageType string    `json:"messageType"`
	MediaURL    string    `json:"mediaUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MessagePage 中 NextCursor 为下一页的 before 参数，没有更早的消息时为 nil。
type MessagePage struct {
	Messages   []MessageDTO `json:"messages"`
	NextCursor *uint64      `json:"nextCursor"`
}

// ListByRoom 分页查询指定房间的消息，按 id 升序返回。beforeID 为 0 表示从最新开始。
// 私有房间与私聊房间要求调用者有成员关系；已删除房间的历史只对原有成员开放。
func (s *MessageService) ListByRoom(ctx context.Context, userID, roomID string, beforeID uint64, limit int) (*MessagePage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	room, err := s.store.RoomByIDUnscoped(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if room.Kind != models.RoomPublic || room.DeletedAt.Valid {
		ok, err := s.store.IsMember(ctx, room.ID, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrForbidden
		}
	}

	msgs, err := s.store.MessagesBefore(ctx, room.ID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.SenderID)
	}
	usernames, err := s.store.Usernames(ctx, ids)
	if err != nil {
		return nil, err
	}

	page := &MessagePage{Messages: make([]MessageDTO, 0, len(msgs))}
	for _, m := range msgs {
		page.Messages = append(page.Messages, MessageDTO{
			ID:          m.ID,
			RoomID:      m.RoomID,
			SenderID:    m.SenderID,
			SenderName:  usernames[m.SenderID],
			Ciphertext:  m.Ciphertext,
			MessageType: string(m.Kind),
			MediaURL:    m.MediaRef,
			CreatedAt:   m.CreatedAt,
		})
	}
	if len(msgs) == limit {
		cursor := msgs[0].ID
		page.NextCursor = &cursor
	}
	return page, nil
}
