package store

import (
	"context"
	"errors"
	"fmt"

	"radiochat/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateRoom 在同一事务中写入房间和初始成员。
func (s *Store) CreateRoom(ctx context.Context, room *models.Room, memberIDs ...string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrNameTaken
			}
			return err
		}
		for _, uid := range memberIDs {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.RoomMember{RoomID: room.ID, UserID: uid}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RoomByID 只返回未删除的房间。
func (s *Store) RoomByID(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&room).Error; err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

func (s *Store) RoomByName(ctx context.Context, name string) (*models.Room, error) {
	var room models.Room
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&room).Error; err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

func (s *Store) RenameRoom(ctx context.Context, id, name, displayName string) error {
	res := s.db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", id).
		Updates(map[string]any{"name": name, "display_name": displayName})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrNameTaken
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteRoom 标记删除并改写名字，让新房间可以复用原名；消息保留。
func (s *Store) SoftDeleteRoom(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := tx.Where("id = ?", id).First(&room).Error; err != nil {
			return notFound(err)
		}
		tomb := fmt.Sprintf("%s#deleted#%s", room.Name, room.ID)
		if err := tx.Model(&room).Update("name", tomb).Error; err != nil {
			return err
		}
		return tx.Delete(&room).Error
	})
}

// TransferOwnership 更新创建者并确保新主人拥有成员关系。
func (s *Store) TransferOwnership(ctx context.Context, roomID, newOwnerID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Room{}).Where("id = ?", roomID).Update("creator_id", newOwnerID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.RoomMember{RoomID: roomID, UserID: newOwnerID}).Error
	})
}

// FindDM 查找成员集合恰好为 {a, b} 的私聊房间。
func (s *Store) FindDM(ctx context.Context, a, b string) (*models.Room, error) {
	db := s.db.WithContext(ctx)
	memberOf := func(uid string) *gorm.DB {
		return db.Model(&models.RoomMember{}).Select("room_id").Where("user_id = ?", uid)
	}
	var room models.Room
	err := db.Where("kind = ?", models.RoomDM).
		Where("id IN (?)", memberOf(a)).
		Where("id IN (?)", memberOf(b)).
		Where("(SELECT COUNT(*) FROM room_members rm WHERE rm.room_id = rooms.id) = ?", 2).
		Order("created_at").
		First(&room).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

// VisibleRooms 返回所有公开房间，加上 userID 拥有成员关系的私有/私聊房间。
// 第二个返回值是 userID 已加入的房间集合。
func (s *Store) VisibleRooms(ctx context.Context, userID string) ([]models.Room, map[string]bool, error) {
	db := s.db.WithContext(ctx)
	q := db.Where("kind = ?", models.RoomPublic)
	if userID != "" {
		sub := db.Model(&models.RoomMember{}).Select("room_id").Where("user_id = ?", userID)
		q = db.Where("kind = ? OR id IN (?)", models.RoomPublic, sub)
	}
	var rooms []models.Room
	if err := q.Order("created_at").Find(&rooms).Error; err != nil {
		return nil, nil, err
	}
	joined := make(map[string]bool)
	if userID != "" {
		var ids []string
		if err := db.Model(&models.RoomMember{}).Where("user_id = ?", userID).Pluck("room_id", &ids).Error; err != nil {
			return nil, nil, err
		}
		for _, id := range ids {
			joined[id] = true
		}
	}
	return rooms, joined, nil
}

// RoomByIDUnscoped 包含已软删除的房间，用于按 id 读取历史。
func (s *Store) RoomByIDUnscoped(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := s.db.WithContext(ctx).Unscoped().Where("id = ?", id).First(&room).Error; err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}
