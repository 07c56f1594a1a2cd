package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"radiochat/internal/models"
	"radiochat/internal/store"
)

const inviteAttempts = 5

// CreateInvite 为房间生成一次性邀请码，只有成员可以邀请。
func (s *Service) CreateInvite(ctx context.Context, sess *Session, ev *CreateInvite) (InviteCreated, error) {
	if err := requireAuth(sess); err != nil {
		return InviteCreated{}, err
	}
	if ev.RoomID == "" {
		return InviteCreated{}, fmt.Errorf("%w: roomId is required", ErrValidation)
	}
	room, err := s.store.RoomByID(ctx, ev.RoomID)
	if err != nil {
		return InviteCreated{}, roomErr(err)
	}
	if room.Kind == models.RoomDM {
		return InviteCreated{}, fmt.Errorf("%w: direct message rooms do not take invites", ErrValidation)
	}
	ok, err := s.store.IsMember(ctx, room.ID, sess.identity.ID)
	if err != nil {
		return InviteCreated{}, err
	}
	if !ok {
		return InviteCreated{}, ErrNotAMember
	}

	expires := s.now().Add(s.inviteTTL)
	for i := 0; i < inviteAttempts; i++ {
		code, err := newInviteCode()
		if err != nil {
			return InviteCreated{}, err
		}
		inv := &models.RoomInvite{
			Code:      code,
			RoomID:    room.ID,
			CreatedBy: sess.identity.ID,
			ExpiresAt: expires,
		}
		err = s.store.CreateInvite(ctx, inv)
		if errors.Is(err, store.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return InviteCreated{}, err
		}
		return InviteCreated{RoomID: room.ID, Code: code, ExpiresAt: expires}, nil
	}
	return InviteCreated{}, fmt.Errorf("no free invite code after %d attempts", inviteAttempts)
}

// RedeemInvite 兑换邀请码并进入房间。标记已使用与写入成员关系在同一个存储事务中完成。
func (s *Service) RedeemInvite(ctx context.Context, sess *Session, ev *JoinViaInvite) error {
	if err := requireAuth(sess); err != nil {
		return err
	}
	code := strings.TrimSpace(ev.Code)
	if code == "" {
		return fmt.Errorf("%w: code is required", ErrValidation)
	}
	inv, err := s.store.RedeemInvite(ctx, code, sess.identity.ID, s.now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrInvalidCode
	case errors.Is(err, store.ErrInviteUsed):
		return ErrInviteUsed
	case errors.Is(err, store.ErrInviteExpired):
		return ErrInviteExpired
	case errors.Is(err, store.ErrAlreadyMember):
		return ErrAlreadyMember
	case err != nil:
		return err
	}
	room, err := s.store.RoomByID(ctx, inv.RoomID)
	if err != nil {
		return roomErr(err)
	}
	return s.enter(ctx, sess, roomInfoOf(room))
}
