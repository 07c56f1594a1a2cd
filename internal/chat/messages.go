package chat

import (
	"context"
	"fmt"

	"radiochat/internal/metrics"
	"radiochat/internal/models"
)

// Outgoing 是一条待发送的消息；图片消息的字节已经由媒体管道换成 MediaRef。
type Outgoing struct {
	Ciphertext string
	Kind       models.MessageKind
	MediaRef   string
}

// SendMessage 先持久化再广播，两步在房间顺序锁内完成。发送者本人也会收到广播，
// 从而得知消息的持久化 id。
func (s *Service) SendMessage(ctx context.Context, sess *Session, roomID string, out Outgoing) (MessageEvent, error) {
	if err := s.requireRoom(sess, roomID); err != nil {
		return MessageEvent{}, err
	}
	if out.Kind == "" {
		out.Kind = models.MessageText
	}
	switch out.Kind {
	case models.MessageText:
		if out.Ciphertext == "" {
			return MessageEvent{}, fmt.Errorf("%w: ciphertext is required", ErrValidation)
		}
	case models.MessageImage:
		if out.MediaRef == "" {
			return MessageEvent{}, fmt.Errorf("%w: image message without media", ErrValidation)
		}
	default:
		return MessageEvent{}, fmt.Errorf("%w: unknown messageType %q", ErrValidation, out.Kind)
	}

	var ev MessageEvent
	err := s.rooms.Sequence(roomID, func() error {
		msg := &models.Message{
			RoomID:     roomID,
			SenderID:   sess.identity.ID,
			Ciphertext: out.Ciphertext,
			Kind:       out.Kind,
			MediaRef:   out.MediaRef,
		}
		if err := s.store.SaveMessage(ctx, msg); err != nil {
			return err
		}
		ev = messageEvent(msg, sess.identity.DisplayName)
		s.bc.Broadcast(roomID, ev, nil)
		return nil
	})
	if err != nil {
		return MessageEvent{}, err
	}
	metrics.WsMessagesTotal.Inc()
	return ev, nil
}

// Typing 只转发给房间内的其他人，不落库。
func (s *Service) Typing(_ context.Context, sess *Session, ev *Typing) error {
	if err := s.requireRoom(sess, ev.RoomID); err != nil {
		return err
	}
	s.bc.Broadcast(ev.RoomID, UserTyping{RoomID: ev.RoomID, UserID: sess.identity.ID, Username: sess.identity.DisplayName}, sess)
	return nil
}

// requireRoom 要求已认证且当前会话确实在 roomID 中，请求里伪造的房间 id 不会被接受。
func (s *Service) requireRoom(sess *Session, roomID string) error {
	if err := requireAuth(sess); err != nil {
		return err
	}
	if roomID == "" {
		return fmt.Errorf("%w: roomId is required", ErrValidation)
	}
	if sess.RoomID() != roomID {
		return ErrNotInRoom
	}
	return nil
}

// recentHistory 返回最近的消息（按时间顺序），附带发送者用户名。
func (s *Service) recentHistory(ctx context.Context, roomID string) ([]MessageEvent, error) {
	msgs, err := s.store.RecentMessages(ctx, roomID, s.history)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.SenderID)
	}
	names, err := s.store.Usernames(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]MessageEvent, 0, len(msgs))
	for i := range msgs {
		out = append(out, messageEvent(&msgs[i], names[msgs[i].SenderID]))
	}
	return out, nil
}

func messageEvent(m *models.Message, senderName string) MessageEvent {
	return MessageEvent{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		SenderName:  senderName,
		Ciphertext:  m.Ciphertext,
		MessageType: string(m.Kind),
		MediaURL:    m.MediaRef,
		CreatedAt:   m.CreatedAt,
	}
}
