package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// Protocol 是当前唯一支持的线协议方言。
const Protocol = "radiochat/1"

// 客户端 -> 服务端事件类型。
const (
	TypeJoinRoom          = "joinRoom"
	TypeSendMessage       = "sendMessage"
	TypeCreateRoom        = "createRoom"
	TypeLeaveRoom         = "leaveRoom"
	TypeListRooms         = "listRooms"
	TypeTyping            = "typing"
	TypeCreateInvite      = "createInvite"
	TypeJoinViaInvite     = "joinViaInvite"
	TypeRenameRoom        = "renameRoom"
	TypeDeleteRoom        = "deleteRoom"
	TypeTransferOwnership = "transferOwnership"
	TypeCreateDM          = "createDM"
)

// ClientEvent 是客户端事件的封闭联合类型，只有本包内的类型实现它。
type ClientEvent interface {
	clientEvent() string
}

type JoinRoom struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

type SendMessage struct {
	RoomID      string `json:"roomId"`
	Ciphertext  string `json:"ciphertext"`
	MessageType string `json:"messageType"`
	ImageData   string `json:"imageData"`
}

type CreateRoom struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	RoomType    string `json:"roomType"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

type ListRooms struct{}

type Typing struct {
	RoomID string `json:"roomId"`
}

type CreateInvite struct {
	RoomID string `json:"roomId"`
}

type JoinViaInvite struct {
	Code string `json:"code"`
}

type RenameRoom struct {
	RoomID  string `json:"roomId"`
	NewName string `json:"newName"`
}

type DeleteRoom struct {
	RoomID string `json:"roomId"`
}

type TransferOwnership struct {
	RoomID           string `json:"roomId"`
	NewOwnerUsername string `json:"newOwnerUsername"`
}

type CreateDM struct {
	TargetUsername string `json:"targetUsername"`
}

func (*JoinRoom) clientEvent() string          { return TypeJoinRoom }
func (*SendMessage) clientEvent() string       { return TypeSendMessage }
func (*CreateRoom) clientEvent() string        { return TypeCreateRoom }
func (*LeaveRoom) clientEvent() string         { return TypeLeaveRoom }
func (*ListRooms) clientEvent() string         { return TypeListRooms }
func (*Typing) clientEvent() string            { return TypeTyping }
func (*CreateInvite) clientEvent() string      { return TypeCreateInvite }
func (*JoinViaInvite) clientEvent() string     { return TypeJoinViaInvite }
func (*RenameRoom) clientEvent() string        { return TypeRenameRoom }
func (*DeleteRoom) clientEvent() string        { return TypeDeleteRoom }
func (*TransferOwnership) clientEvent() string { return TypeTransferOwnership }
func (*CreateDM) clientEvent() string          { return TypeCreateDM }

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeClientEvent 解析一帧 {type, payload}。未知类型返回 ErrUnknownEvent，
// 格式错误返回 ErrValidation。
func DecodeClientEvent(data []byte) (ClientEvent, error) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: malformed frame", ErrValidation)
	}
	var ev ClientEvent
	switch in.Type {
	case TypeJoinRoom:
		ev = &JoinRoom{}
	case TypeSendMessage:
		ev = &SendMessage{}
	case TypeCreateRoom:
		ev = &CreateRoom{}
	case TypeLeaveRoom:
		ev = &LeaveRoom{}
	case TypeListRooms:
		ev = &ListRooms{}
	case TypeTyping:
		ev = &Typing{}
	case TypeCreateInvite:
		ev = &CreateInvite{}
	case TypeJoinViaInvite:
		ev = &JoinViaInvite{}
	case TypeRenameRoom:
		ev = &RenameRoom{}
	case TypeDeleteRoom:
		ev = &DeleteRoom{}
	case TypeTransferOwnership:
		ev = &TransferOwnership{}
	case TypeCreateDM:
		ev = &CreateDM{}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrValidation)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, in.Type)
	}
	if len(in.Payload) > 0 && string(in.Payload) != "null" {
		if err := json.Unmarshal(in.Payload, ev); err != nil {
			return nil, fmt.Errorf("%w: malformed %s payload", ErrValidation, in.Type)
		}
	}
	return ev, nil
}

// ServerEvent 是服务端事件的封闭联合类型。
type ServerEvent interface {
	EventType() string
}

type MessageEvent struct {
	ID          uint64    `json:"id"`
	RoomID      string    `json:"roomId"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Ciphertext  string    `json:"ciphertext"`
	MessageType string    `json:"messageType"`
	MediaURL    string    `json:"mediaUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type UserJoined struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type UserLeft struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type UserTyping struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type OnlineUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type RoomJoined struct {
	RoomID        string         `json:"roomId"`
	Name          string         `json:"name"`
	DisplayName   string         `json:"displayName"`
	RoomType      string         `json:"roomType"`
	CreatorID     string         `json:"creatorId"`
	EncryptionKey string         `json:"encryptionKey"`
	Messages      []MessageEvent `json:"messages"`
	OnlineUsers   []OnlineUser   `json:"onlineUsers"`
}

type RoomCreated struct {
	RoomID      string `json:"roomId"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	RoomType    string `json:"roomType"`
}

type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	RoomType    string `json:"roomType"`
	CreatorID   string `json:"creatorId"`
	OnlineCount int    `json:"onlineCount"`
	IsMember    bool   `json:"isMember"`
}

type RoomsList struct {
	PublicRooms  []RoomSummary `json:"publicRooms"`
	PrivateRooms []RoomSummary `json:"privateRooms"`
}

type InviteCreated struct {
	RoomID    string    `json:"roomId"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type RoomRenamed struct {
	RoomID      string `json:"roomId"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type RoomDeleted struct {
	RoomID string `json:"roomId"`
}

type OwnershipTransferred struct {
	RoomID           string `json:"roomId"`
	NewOwnerID       string `json:"newOwnerId"`
	NewOwnerUsername string `json:"newOwnerUsername"`
}

type ErrorEvent struct {
	Message string `json:"message"`
	Code    Kind   `json:"code"`
}

type InfoEvent struct {
	Message  string `json:"message"`
	Protocol string `json:"protocol,omitempty"`
}

func (MessageEvent) EventType() string         { return "message" }
func (UserJoined) EventType() string           { return "userJoined" }
func (UserLeft) EventType() string             { return "userLeft" }
func (UserTyping) EventType() string           { return "userTyping" }
func (RoomJoined) EventType() string           { return "roomJoined" }
func (RoomCreated) EventType() string          { return "roomCreated" }
func (RoomsList) EventType() string            { return "roomsList" }
func (InviteCreated) EventType() string        { return "inviteCreated" }
func (RoomRenamed) EventType() string          { return "roomRenamed" }
func (RoomDeleted) EventType() string          { return "roomDeleted" }
func (OwnershipTransferred) EventType() string { return "ownershipTransferred" }
func (ErrorEvent) EventType() string           { return "error" }
func (InfoEvent) EventType() string            { return "info" }

type outbound struct {
	Type    string      `json:"type"`
	Payload ServerEvent `json:"payload"`
}

// Encode 把服务端事件编码成 {type, payload} 帧。
func Encode(ev ServerEvent) ([]byte, error) {
	return json.Marshal(outbound{Type: ev.EventType(), Payload: ev})
}
