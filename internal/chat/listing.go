package chat

import (
	"context"

	"radiochat/internal/models"
)

// ListRooms 返回所有公开房间以及调用者有成员关系的私有/私聊房间，附带在线人数。
// 访客只能看到公开房间。
func (s *Service) ListRooms(ctx context.Context, sess *Session) (RoomsList, error) {
	var userID string
	if sess.identity.IsAuthenticated {
		userID = sess.identity.ID
	}
	return s.RoomsFor(ctx, userID)
}

// RoomsFor 是 ListRooms 的无会话版本，供 REST 接口使用；userID 为空表示访客。
func (s *Service) RoomsFor(ctx context.Context, userID string) (RoomsList, error) {
	rooms, joined, err := s.store.VisibleRooms(ctx, userID)
	if err != nil {
		return RoomsList{}, err
	}
	list := RoomsList{PublicRooms: []RoomSummary{}, PrivateRooms: []RoomSummary{}}
	for _, r := range rooms {
		sum := RoomSummary{
			ID:          r.ID,
			Name:        r.Name,
			DisplayName: r.DisplayName,
			RoomType:    string(r.Kind),
			CreatorID:   r.CreatorID,
			OnlineCount: s.rooms.Online(r.ID),
			IsMember:    joined[r.ID],
		}
		if r.Kind == models.RoomPublic {
			list.PublicRooms = append(list.PublicRooms, sum)
		} else {
			list.PrivateRooms = append(list.PrivateRooms, sum)
		}
	}
	return list, nil
}
