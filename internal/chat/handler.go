package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"radiochat/internal/models"

	"github.com/rs/zerolog/log"
)

const lastSeenTimeout = 5 * time.Second

// Connect 为新连接绑定会话并发送 connected 通知。
func (s *Service) Connect(conn Conn, identity Identity) (*Session, error) {
	sess, err := s.sessions.Bind(conn, identity)
	if err != nil {
		return nil, err
	}
	s.reply(sess, InfoEvent{Message: "connected", Protocol: Protocol})
	log.Info().Str("module", "chat").Str("user_id", identity.ID).Bool("guest", !identity.IsAuthenticated).Msg("session bound")
	return sess, nil
}

// Handle 处理一帧入站数据。任何失败都转换成发回本连接的 error 事件，连接保持打开。
func (s *Service) Handle(ctx context.Context, sess *Session, frame []byte) {
	ev, err := DecodeClientEvent(frame)
	if err == nil {
		err = s.dispatch(ctx, sess, ev)
	}
	if err != nil {
		s.Fail(sess, err)
	}
}

func (s *Service) dispatch(ctx context.Context, sess *Session, ev ClientEvent) error {
	switch e := ev.(type) {
	case *JoinRoom:
		return s.JoinRoom(ctx, sess, e)
	case *SendMessage:
		out, err := s.outgoing(ctx, sess, e)
		if err != nil {
			return err
		}
		_, err = s.SendMessage(ctx, sess, e.RoomID, out)
		return err
	case *CreateRoom:
		created, err := s.CreateRoom(ctx, sess, e)
		if err != nil {
			return err
		}
		s.reply(sess, created)
		return nil
	case *LeaveRoom:
		return s.LeaveRoom(ctx, sess, e)
	case *ListRooms:
		list, err := s.ListRooms(ctx, sess)
		if err != nil {
			return err
		}
		s.reply(sess, list)
		return nil
	case *Typing:
		return s.Typing(ctx, sess, e)
	case *CreateInvite:
		inv, err := s.CreateInvite(ctx, sess, e)
		if err != nil {
			return err
		}
		s.reply(sess, inv)
		return nil
	case *JoinViaInvite:
		return s.RedeemInvite(ctx, sess, e)
	case *RenameRoom:
		return s.RenameRoom(ctx, sess, e)
	case *DeleteRoom:
		return s.DeleteRoom(ctx, sess, e)
	case *TransferOwnership:
		return s.TransferOwnership(ctx, sess, e)
	case *CreateDM:
		return s.OpenDM(ctx, sess, e)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, ev.clientEvent())
	}
}

// outgoing 把 sendMessage 转成 Outgoing；图片先交给媒体管道换成 mediaRef。
func (s *Service) outgoing(ctx context.Context, sess *Session, e *SendMessage) (Outgoing, error) {
	kind := models.MessageKind(e.MessageType)
	if kind != models.MessageImage {
		return Outgoing{Ciphertext: e.Ciphertext, Kind: kind}, nil
	}
	// 上传之前先校验发送权限。
	if err := s.requireRoom(sess, e.RoomID); err != nil {
		return Outgoing{}, err
	}
	if s.media == nil {
		return Outgoing{}, ErrMediaDisabled
	}
	raw := e.ImageData
	if i := strings.Index(raw, ","); strings.HasPrefix(raw, "data:") && i >= 0 {
		raw = raw[i+1:]
	}
	if raw == "" {
		return Outgoing{}, fmt.Errorf("%w: imageData is required", ErrValidation)
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Outgoing{}, fmt.Errorf("%w: imageData is not base64", ErrValidation)
	}
	ref, err := s.media.Put(ctx, e.RoomID, data)
	if err != nil {
		return Outgoing{}, err
	}
	return Outgoing{Ciphertext: e.Ciphertext, Kind: kind, MediaRef: ref}, nil
}

// Fail 把错误发回请求方；internal 错误只记日志，不把存储层细节暴露给客户端。
func (s *Service) Fail(sess *Session, err error) {
	kind := KindOf(err)
	msg := err.Error()
	if kind == KindInternal {
		log.Error().Err(err).Str("module", "chat").Str("user_id", sess.identity.ID).Msg("request failed")
		msg = "internal error"
	}
	s.reply(sess, ErrorEvent{Message: msg, Code: kind})
}

// Disconnect 先执行离开房间的效果再解绑会话。传输层保证每条连接只调用一次。
func (s *Service) Disconnect(conn Conn) {
	sess, ok := s.sessions.Lookup(conn)
	if !ok {
		return
	}
	s.leave(sess)
	s.sessions.Unbind(conn)
	log.Info().Str("module", "chat").Str("user_id", sess.identity.ID).Msg("session closed")

	if !sess.identity.IsAuthenticated {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), lastSeenTimeout)
	defer cancel()
	if err := s.store.TouchLastSeen(ctx, sess.identity.ID, s.now()); err != nil {
		log.Warn().Err(err).Str("module", "chat").Str("user_id", sess.identity.ID).Msg("update last seen")
	}
}

// reply 直接回复会话；连接已失效时忽略，清理由断线流程负责。
func (s *Service) reply(sess *Session, ev ServerEvent) {
	if err := s.bc.SendTo(sess, ev); err != nil {
		log.Debug().Err(err).Str("module", "chat").Str("event", ev.EventType()).Msg("reply dropped")
	}
}
