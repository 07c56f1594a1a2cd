package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"radiochat/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).Count(&count).Error
	return count > 0, err
}

// AddMember 幂等地写入成员关系，created 表示本次是否新建。
func (s *Store) AddMember(ctx context.Context, roomID, userID string) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.RoomMember{RoomID: roomID, UserID: userID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) MemberIDs(ctx context.Context, roomID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ?", roomID).Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

func (s *Store) CreateInvite(ctx context.Context, inv *models.RoomInvite) error {
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrCodeTaken
		}
		return err
	}
	return nil
}

// RedeemInvite 在一个事务里校验邀请码、标记已使用并创建成员关系。
// 邀请码在 now >= ExpiresAt 时视为过期。
func (s *Store) RedeemInvite(ctx context.Context, code, userID string, now time.Time) (*models.RoomInvite, error) {
	var inv models.RoomInvite
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", strings.ToUpper(code)).First(&inv).Error; err != nil {
			return notFound(err)
		}
		if inv.UsedBy != nil {
			return ErrInviteUsed
		}
		if !now.Before(inv.ExpiresAt) {
			return ErrInviteExpired
		}
		var room models.Room
		if err := tx.Select("id").Where("id = ?", inv.RoomID).First(&room).Error; err != nil {
			return notFound(err)
		}
		var count int64
		if err := tx.Model(&models.RoomMember{}).
			Where("room_id = ? AND user_id = ?", inv.RoomID, userID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyMember
		}
		res := tx.Model(&models.RoomInvite{}).
			Where("id = ? AND used_by IS NULL", inv.ID).
			Updates(map[string]any{"used_by": userID, "used_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInviteUsed
		}
		inv.UsedBy = &userID
		inv.UsedAt = &now
		return tx.Create(&models.RoomMember{RoomID: inv.RoomID, UserID: userID}).Error
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
