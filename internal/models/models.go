package models

import (
	"time"

	"gorm.io/gorm"
)

// RoomKind 房间类型。
type RoomKind string

const (
	RoomPublic  RoomKind = "public"
	RoomPrivate RoomKind = "private"
	RoomDM      RoomKind = "dm"
)

func (k RoomKind) Valid() bool {
	return k == RoomPublic || k == RoomPrivate || k == RoomDM
}

// MessageKind 消息类型，负载本身对服务端不透明。
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
)

type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string
	PublicKey    string `gorm:"type:text"`
	KeyType      string `gorm:"size:16"`
	LastSeen     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuthChallenge 是一次性的签名挑战。
type AuthChallenge struct {
	ID        uint      `gorm:"primaryKey"`
	Username  string    `gorm:"index;size:64;not null"`
	Challenge string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"index;size:36;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Room 的 Name 只在未删除的房间之间唯一，软删除时会改写 Name 以释放原名。
type Room struct {
	ID            string   `gorm:"primaryKey;size:36"`
	Name          string   `gorm:"uniqueIndex;size:160;not null"`
	DisplayName   string   `gorm:"size:128;not null"`
	Kind          RoomKind `gorm:"index;size:16;not null"`
	CreatorID     string   `gorm:"index;size:36;not null"`
	EncryptionKey string   `gorm:"type:text;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

type RoomMember struct {
	RoomID    string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time
}

type RoomInvite struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"uniqueIndex;size:16;not null"`
	RoomID    string    `gorm:"index;size:36;not null"`
	CreatedBy string    `gorm:"size:36;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	UsedBy    *string   `gorm:"size:36"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Message 只追加，从不单独修改或删除。
type Message struct {
	ID         uint64      `gorm:"primaryKey;autoIncrement"`
	RoomID     string      `gorm:"index:idx_msg_room_id;size:36;not null"`
	SenderID   string      `gorm:"index;size:36;not null"`
	Ciphertext string      `gorm:"type:text;not null"`
	Kind       MessageKind `gorm:"size:16;not null"`
	MediaRef   string      `gorm:"type:text"`
	CreatedAt  time.Time
}
