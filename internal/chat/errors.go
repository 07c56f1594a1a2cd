package chat

import "errors"

// 协议层错误，Handle 会把它们一一转换成发回给请求方的 error 事件。
var (
	ErrValidation       = errors.New("invalid request")
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrDuplicateBinding = errors.New("connection already bound")
	ErrRoomNotFound     = errors.New("room not found")
	ErrAccessDenied     = errors.New("access denied")
	ErrAuthRequired     = errors.New("authentication required")
	ErrNameTaken        = errors.New("room name taken")
	ErrNotInRoom        = errors.New("not in room")
	ErrNotAMember       = errors.New("not a member of this room")
	ErrInvalidCode      = errors.New("invalid invite code")
	ErrInviteExpired    = errors.New("invite expired")
	ErrInviteUsed       = errors.New("invite already used")
	ErrAlreadyMember    = errors.New("already a member")
	ErrNotOwner         = errors.New("only the room owner can do that")
	ErrTargetNotFound   = errors.New("user not found")
	ErrSelfDM           = errors.New("cannot open a direct message with yourself")
	ErrMediaDisabled    = errors.New("image upload is not available")
	ErrMediaRejected    = errors.New("image rejected")
	ErrRateLimited      = errors.New("too many requests")
)

// Kind 是错误分类，作为 error 事件的 code 发给客户端。
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindAccessDenied Kind = "access_denied"
	KindConflict     Kind = "conflict"
	KindExpired      Kind = "expired"
	KindAlreadyUsed  Kind = "already_used"
	KindRateLimited  Kind = "rate_limited"
	KindInternal     Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrUnknownEvent, KindValidation},
	{ErrNotInRoom, KindValidation},
	{ErrSelfDM, KindValidation},
	{ErrMediaDisabled, KindValidation},
	{ErrMediaRejected, KindValidation},
	{ErrRoomNotFound, KindNotFound},
	{ErrTargetNotFound, KindNotFound},
	{ErrInvalidCode, KindNotFound},
	{ErrAccessDenied, KindAccessDenied},
	{ErrAuthRequired, KindAccessDenied},
	{ErrNotAMember, KindAccessDenied},
	{ErrNotOwner, KindAccessDenied},
	{ErrNameTaken, KindConflict},
	{ErrAlreadyMember, KindConflict},
	{ErrDuplicateBinding, KindConflict},
	{ErrInviteExpired, KindExpired},
	{ErrInviteUsed, KindAlreadyUsed},
	{ErrRateLimited, KindRateLimited},
}

// KindOf 返回错误所属分类；未知错误（例如存储不可用）归为 internal。
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
