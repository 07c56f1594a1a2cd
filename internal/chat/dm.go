package chat

import (
	"context"
	"errors"
	"fmt"

	"radiochat/internal/models"
	"radiochat/internal/store"

	"github.com/google/uuid"
)

// dmName 对两个用户 id 排序后拼接，同一对用户总是得到同一个名字。
func dmName(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%s:%s", a, b)
}

// OpenDM 查找或创建与目标用户的私聊房间，然后只让发起方进入；对方下次列房间时能看到它。
func (s *Service) OpenDM(ctx context.Context, sess *Session, ev *CreateDM) error {
	if err := requireAuth(sess); err != nil {
		return err
	}
	if ev.TargetUsername == "" {
		return fmt.Errorf("%w: targetUsername is required", ErrValidation)
	}
	me := sess.identity
	target, err := s.store.UserByUsername(ctx, ev.TargetUsername)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTargetNotFound
		}
		return err
	}
	if target.ID == me.ID {
		return ErrSelfDM
	}

	room, err := s.store.FindDM(ctx, me.ID, target.ID)
	if errors.Is(err, store.ErrNotFound) {
		room, err = s.createDM(ctx, me, target)
	}
	if err != nil {
		return err
	}
	return s.enter(ctx, sess, roomInfoOf(room))
}

func (s *Service) createDM(ctx context.Context, me Identity, target *models.User) (*models.Room, error) {
	key, err := newKeyMaterial()
	if err != nil {
		return nil, err
	}
	room := &models.Room{
		ID:            uuid.NewString(),
		Name:          dmName(me.ID, target.ID),
		DisplayName:   me.DisplayName + " & " + target.Username,
		Kind:          models.RoomDM,
		CreatorID:     me.ID,
		EncryptionKey: key,
	}
	err = s.store.CreateRoom(ctx, room, me.ID, target.ID)
	if errors.Is(err, store.ErrNameTaken) {
		// 对方同时发起了私聊
		existing, ferr := s.store.FindDM(ctx, me.ID, target.ID)
		if ferr != nil {
			return nil, ErrNameTaken
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}
