package chat

import (
	"radiochat/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Delivery 汇总一次广播的投递结果。
type Delivery struct {
	Sent    int
	Dropped int
}

// Broadcaster 把事件扇出给房间的在线 roster。
type Broadcaster struct {
	rooms *RoomRegistry
}

func NewBroadcaster(rooms *RoomRegistry) *Broadcaster {
	return &Broadcaster{rooms: rooms}
}

// Broadcast 只编码一次，然后在锁外逐个投递；单个成员投递失败不会影响其他成员，
// 失败的连接被异步关闭，由它自己的断线清理流程处理。房间未激活时什么也不做。
func (b *Broadcaster) Broadcast(roomID string, ev ServerEvent, exclude *Session) Delivery {
	var d Delivery
	roster := b.rooms.Roster(roomID)
	if len(roster) == 0 {
		return d
	}
	frame, err := Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Str("event", ev.EventType()).Msg("encode broadcast")
		return d
	}
	for _, s := range roster {
		if s == exclude {
			continue
		}
		if err := s.conn.Send(frame); err != nil {
			d.Dropped++
			metrics.BroadcastDropped.Inc()
			log.Debug().Err(err).Str("module", "chat").Str("room_id", roomID).Str("user_id", s.identity.ID).Msg("broadcast drop")
			go s.conn.Close()
			continue
		}
		d.Sent++
	}
	return d
}

// SendTo 直接回复单个会话。
func (b *Broadcaster) SendTo(s *Session, ev ServerEvent) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}
	return s.conn.Send(frame)
}
