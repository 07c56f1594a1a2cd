// Package chat 是房间成员管理与消息扇出的核心：会话注册表、房间注册表、
// 成员与邀请协议、广播引擎以及连接生命周期处理。
package chat

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"radiochat/internal/models"
	"radiochat/internal/store"
)

// Store 是核心依赖的持久层接口，由 store.Store 实现。
type Store interface {
	CreateRoom(ctx context.Context, room *models.Room, memberIDs ...string) error
	RoomByID(ctx context.Context, id string) (*models.Room, error)
	RoomByName(ctx context.Context, name string) (*models.Room, error)
	RenameRoom(ctx context.Context, id, name, displayName string) error
	SoftDeleteRoom(ctx context.Context, id string) error
	TransferOwnership(ctx context.Context, roomID, newOwnerID string) error
	FindDM(ctx context.Context, a, b string) (*models.Room, error)
	VisibleRooms(ctx context.Context, userID string) ([]models.Room, map[string]bool, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	AddMember(ctx context.Context, roomID, userID string) (bool, error)
	CreateInvite(ctx context.Context, inv *models.RoomInvite) error
	RedeemInvite(ctx context.Context, code, userID string, now time.Time) (*models.RoomInvite, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
	RecentMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	Usernames(ctx context.Context, ids []string) (map[string]string, error)
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
}

// MediaStore 是图片管道：接收原始字节，返回可访问的 mediaRef。
type MediaStore interface {
	Put(ctx context.Context, roomID string, data []byte) (string, error)
}

const (
	DefaultHistoryLimit = 50
	DefaultInviteTTL    = 24 * time.Hour

	maxRoomName    = 64
	maxDisplayName = 128
	inviteCodeLen  = 8
)

type Options struct {
	HistoryLimit int
	InviteTTL    time.Duration
	Media        MediaStore
	Now          func() time.Time
}

type Service struct {
	store     Store
	media     MediaStore
	sessions  *SessionRegistry
	rooms     *RoomRegistry
	bc        *Broadcaster
	history   int
	inviteTTL time.Duration
	now       func() time.Time
}

func NewService(st Store, opts Options) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.InviteTTL <= 0 {
		opts.InviteTTL = DefaultInviteTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	rooms := NewRoomRegistry()
	return &Service{
		store:     st,
		media:     opts.Media,
		sessions:  NewSessionRegistry(),
		rooms:     rooms,
		bc:        NewBroadcaster(rooms),
		history:   opts.HistoryLimit,
		inviteTTL: opts.InviteTTL,
		now:       opts.Now,
	}
}

func (s *Service) Sessions() *SessionRegistry { return s.sessions }

func (s *Service) Rooms() *RoomRegistry { return s.rooms }

func (s *Service) Broadcaster() *Broadcaster { return s.bc }

func requireAuth(sess *Session) error {
	if !sess.identity.IsAuthenticated {
		return ErrAuthRequired
	}
	return nil
}

func validateRoomName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: room name is required", ErrValidation)
	}
	if len(name) > maxRoomName {
		return "", fmt.Errorf("%w: room name too long", ErrValidation)
	}
	if strings.Contains(name, "#") {
		return "", fmt.Errorf("%w: room name may not contain '#'", ErrValidation)
	}
	return name, nil
}

func validateDisplayName(raw, fallback string) (string, error) {
	dn := strings.TrimSpace(raw)
	if dn == "" {
		return fallback, nil
	}
	if utf8.RuneCountInString(dn) > maxDisplayName {
		return "", fmt.Errorf("%w: display name too long", ErrValidation)
	}
	return dn, nil
}

// newKeyMaterial 为房间生成新的密钥材料，服务端只保存、分发，从不使用它解密。
func newKeyMaterial() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// 去掉 0/O、1/I 等易混淆字符。
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newInviteCode() (string, error) {
	b := make([]byte, inviteCodeLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = inviteAlphabet[int(b[i])%len(inviteAlphabet)]
	}
	return string(b), nil
}

// roomErr 把持久层的 not found 统一成 ErrRoomNotFound。
func roomErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrRoomNotFound
	}
	return err
}
