package chat

import (
	"context"
	"errors"
	"fmt"

	"radiochat/internal/models"
	"radiochat/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CreateRoom 创建房间并把创建者写成成员，房间在第一次加入前不会激活。
func (s *Service) CreateRoom(ctx context.Context, sess *Session, ev *CreateRoom) (RoomCreated, error) {
	if err := requireAuth(sess); err != nil {
		return RoomCreated{}, err
	}
	name, err := validateRoomName(ev.Name)
	if err != nil {
		return RoomCreated{}, err
	}
	displayName, err := validateDisplayName(ev.DisplayName, name)
	if err != nil {
		return RoomCreated{}, err
	}
	kind := models.RoomKind(ev.RoomType)
	if kind == "" {
		kind = models.RoomPublic
	}
	if kind != models.RoomPublic && kind != models.RoomPrivate {
		return RoomCreated{}, fmt.Errorf("%w: roomType must be public or private", ErrValidation)
	}
	key, err := newKeyMaterial()
	if err != nil {
		return RoomCreated{}, err
	}

	room := &models.Room{
		ID:            uuid.NewString(),
		Name:          name,
		DisplayName:   displayName,
		Kind:          kind,
		CreatorID:     sess.identity.ID,
		EncryptionKey: key,
	}
	if err := s.store.CreateRoom(ctx, room, sess.identity.ID); err != nil {
		if errors.Is(err, store.ErrNameTaken) {
			return RoomCreated{}, ErrNameTaken
		}
		return RoomCreated{}, err
	}
	log.Info().Str("module", "chat").Str("room_id", room.ID).Str("user_id", sess.identity.ID).Str("kind", string(kind)).Msg("room created")
	return RoomCreated{RoomID: room.ID, Name: room.Name, DisplayName: room.DisplayName, RoomType: string(room.Kind)}, nil
}

// resolveRoom 先按 id 查找，再按名字查找，只返回未删除的房间。
func (s *Service) resolveRoom(ctx context.Context, roomID, roomName string) (*models.Room, error) {
	if roomID == "" && roomName == "" {
		return nil, fmt.Errorf("%w: roomId or roomName is required", ErrValidation)
	}
	if roomID != "" {
		room, err := s.store.RoomByID(ctx, roomID)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	name := roomName
	if name == "" {
		name = roomID
	}
	room, err := s.store.RoomByName(ctx, name)
	if err != nil {
		return nil, roomErr(err)
	}
	return room, nil
}

// JoinRoom 校验访问权限后进入房间。公开房间按需补写成员关系；
// 私有房间与私聊房间要求已有成员关系。访客只能进入公开房间，且不写成员关系。
func (s *Service) JoinRoom(ctx context.Context, sess *Session, ev *JoinRoom) error {
	room, err := s.resolveRoom(ctx, ev.RoomID, ev.RoomName)
	if err != nil {
		return err
	}
	if err := s.authorizeJoin(ctx, sess, room); err != nil {
		return err
	}
	return s.enter(ctx, sess, roomInfoOf(room))
}

func (s *Service) authorizeJoin(ctx context.Context, sess *Session, room *models.Room) error {
	id := sess.identity
	if room.Kind == models.RoomPublic {
		if !id.IsAuthenticated {
			return nil
		}
		_, err := s.store.AddMember(ctx, room.ID, id.ID)
		return err
	}
	if !id.IsAuthenticated {
		return ErrAccessDenied
	}
	ok, err := s.store.IsMember(ctx, room.ID, id.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

// enter 让会话进入房间。取历史、离开原房间、加入 roster、回复 roomJoined 在房间顺序锁内完成，
// 因此新成员看到的历史与之后的实时消息之间既不重复也不缺失。
// 取历史失败时会话留在原房间，激活出来的空房间被回收。
func (s *Service) enter(ctx context.Context, sess *Session, resolved RoomInfo) error {
	info, err := s.rooms.GetOrActivate(ctx, resolved.ID, func(context.Context, string) (RoomInfo, error) {
		return resolved, nil
	})
	if err != nil {
		return err
	}

	var added bool
	err = s.rooms.Sequence(info.ID, func() error {
		history, err := s.recentHistory(ctx, info.ID)
		if err != nil {
			return err
		}
		if prev := sess.RoomID(); prev != "" && prev != info.ID {
			s.leave(sess)
		}
		added = s.rooms.AddMember(info, sess)
		if cur, ok := s.rooms.Get(info.ID); ok {
			info = cur
		}
		s.reply(sess, RoomJoined{
			RoomID:        info.ID,
			Name:          info.Name,
			DisplayName:   info.DisplayName,
			RoomType:      string(info.Kind),
			CreatorID:     info.CreatorID,
			EncryptionKey: info.EncryptionKey,
			Messages:      history,
			OnlineUsers:   s.onlineUsers(info.ID),
		})
		return nil
	})
	if err != nil {
		s.rooms.ReleaseIfEmpty(info.ID)
		return err
	}
	if added {
		s.bc.Broadcast(info.ID, UserJoined{RoomID: info.ID, UserID: sess.identity.ID, Username: sess.identity.DisplayName}, sess)
	}
	return nil
}

// onlineUsers 按身份去重：同一用户的多条连接只列一次。
func (s *Service) onlineUsers(roomID string) []OnlineUser {
	roster := s.rooms.Roster(roomID)
	seen := make(map[string]struct{}, len(roster))
	users := make([]OnlineUser, 0, len(roster))
	for _, m := range roster {
		if _, ok := seen[m.identity.ID]; ok {
			continue
		}
		seen[m.identity.ID] = struct{}{}
		users = append(users, OnlineUser{UserID: m.identity.ID, Username: m.identity.DisplayName})
	}
	return users
}

// leave 把会话移出当前房间并通知剩余成员，会话不在任何房间时返回 false。
func (s *Service) leave(sess *Session) bool {
	roomID := sess.RoomID()
	if roomID == "" {
		return false
	}
	removed, evicted := s.rooms.RemoveMember(roomID, sess)
	if !removed {
		return false
	}
	if !evicted {
		s.bc.Broadcast(roomID, UserLeft{RoomID: roomID, UserID: sess.identity.ID, Username: sess.identity.DisplayName}, nil)
	}
	log.Debug().Str("module", "chat").Str("room_id", roomID).Str("user_id", sess.identity.ID).Bool("evicted", evicted).Msg("left room")
	return true
}

// LeaveRoom 只是在线状态的变化，不删除成员关系。
func (s *Service) LeaveRoom(_ context.Context, sess *Session, ev *LeaveRoom) error {
	if cur := sess.RoomID(); ev.RoomID != "" && cur != "" && cur != ev.RoomID {
		return ErrNotInRoom
	}
	s.leave(sess)
	s.reply(sess, InfoEvent{Message: "left room"})
	return nil
}

// ownedRoom 加载房间并校验调用者是创建者。
func (s *Service) ownedRoom(ctx context.Context, sess *Session, roomID string) (*models.Room, error) {
	if err := requireAuth(sess); err != nil {
		return nil, err
	}
	if roomID == "" {
		return nil, fmt.Errorf("%w: roomId is required", ErrValidation)
	}
	room, err := s.store.RoomByID(ctx, roomID)
	if err != nil {
		return nil, roomErr(err)
	}
	if room.CreatorID != sess.identity.ID {
		return nil, ErrNotOwner
	}
	return room, nil
}

// notifyRoom 广播给房间 roster；操作者不在该房间时单独回复一份。
func (s *Service) notifyRoom(sess *Session, roomID string, ev ServerEvent) {
	s.bc.Broadcast(roomID, ev, nil)
	if sess.RoomID() != roomID {
		s.reply(sess, ev)
	}
}

func (s *Service) RenameRoom(ctx context.Context, sess *Session, ev *RenameRoom) error {
	room, err := s.ownedRoom(ctx, sess, ev.RoomID)
	if err != nil {
		return err
	}
	if room.Kind == models.RoomDM {
		return fmt.Errorf("%w: direct message rooms cannot be renamed", ErrValidation)
	}
	name, err := validateRoomName(ev.NewName)
	if err != nil {
		return err
	}
	if err := s.store.RenameRoom(ctx, room.ID, name, name); err != nil {
		if errors.Is(err, store.ErrNameTaken) {
			return ErrNameTaken
		}
		return roomErr(err)
	}
	s.rooms.UpdateDisplay(room.ID, name, name)
	s.notifyRoom(sess, room.ID, RoomRenamed{RoomID: room.ID, Name: name, DisplayName: name})
	return nil
}

// DeleteRoom 软删除房间，通知在线成员后无条件回收活跃房间；成员的连接本身保持存活。
func (s *Service) DeleteRoom(ctx context.Context, sess *Session, ev *DeleteRoom) error {
	room, err := s.ownedRoom(ctx, sess, ev.RoomID)
	if err != nil {
		return err
	}
	if err := s.store.SoftDeleteRoom(ctx, room.ID); err != nil {
		return roomErr(err)
	}
	inRoom := sess.RoomID() == room.ID
	err = s.rooms.Sequence(room.ID, func() error {
		s.bc.Broadcast(room.ID, RoomDeleted{RoomID: room.ID}, nil)
		s.rooms.Evict(room.ID)
		return nil
	})
	if err != nil {
		return err
	}
	if !inRoom {
		s.reply(sess, RoomDeleted{RoomID: room.ID})
	}
	log.Info().Str("module", "chat").Str("room_id", room.ID).Str("user_id", sess.identity.ID).Msg("room deleted")
	return nil
}

func (s *Service) TransferOwnership(ctx context.Context, sess *Session, ev *TransferOwnership) error {
	room, err := s.ownedRoom(ctx, sess, ev.RoomID)
	if err != nil {
		return err
	}
	if room.Kind == models.RoomDM {
		return fmt.Errorf("%w: direct message rooms cannot change owner", ErrValidation)
	}
	if ev.NewOwnerUsername == "" {
		return fmt.Errorf("%w: newOwnerUsername is required", ErrValidation)
	}
	target, err := s.store.UserByUsername(ctx, ev.NewOwnerUsername)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTargetNotFound
		}
		return err
	}
	if err := s.store.TransferOwnership(ctx, room.ID, target.ID); err != nil {
		return roomErr(err)
	}
	s.rooms.UpdateCreator(room.ID, target.ID)
	s.notifyRoom(sess, room.ID, OwnershipTransferred{RoomID: room.ID, NewOwnerID: target.ID, NewOwnerUsername: target.Username})
	return nil
}
