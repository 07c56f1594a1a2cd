package service

import "errors"

// 业务层通用错误，handler 可根据错误类型映射到合适的 HTTP 状态码。
var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrInvalidUsername    = errors.New("username must be 3-32 characters of letters, digits, '.', '_' or '-'")
	ErrMissingCredential  = errors.New("a public key or a password is required")
	ErrInvalidKey         = errors.New("invalid public key")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrChallengeExpired   = errors.New("no pending challenge")
	ErrRoomNotFound       = errors.New("room not found")
	ErrForbidden          = errors.New("not a member of this room")
)
