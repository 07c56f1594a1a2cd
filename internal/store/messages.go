package store

import (
	"context"

	"radiochat/internal/models"
)

func (s *Store) SaveMessage(ctx context.Context, msg *models.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

// MessagesBefore 分页查询房间消息，beforeID 为 0 表示从最新开始，结果按 id 升序返回。
// 已软删除房间的消息仍可按 id 访问。
func (s *Store) MessagesBefore(ctx context.Context, roomID string, beforeID uint64, limit int) ([]models.Message, error) {
	q := s.db.WithContext(ctx).Where("room_id = ?", roomID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var msgs []models.Message
	if err := q.Order("id desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	// 反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// RecentMessages 返回最近 limit 条消息（按时间顺序）。
func (s *Store) RecentMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	return s.MessagesBefore(ctx, roomID, 0, limit)
}
