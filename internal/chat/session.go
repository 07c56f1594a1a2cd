package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Identity 是连接背后的身份，认证用户或访客。
type Identity struct {
	ID              string
	DisplayName     string
	IsAuthenticated bool
}

// GuestIdentity 为未认证的连接合成一个访客身份。
func GuestIdentity() Identity {
	id := uuid.NewString()
	return Identity{ID: "guest-" + id, DisplayName: "guest-" + id[:8]}
}

// Conn 是会话的传输端点。Send 不能阻塞：连接已关闭或发送队列已满时返回错误。
// Close 可以被重复调用。
type Conn interface {
	Send(frame []byte) error
	Close()
}

// Session 对应一条存活连接。roomID 只在 RoomRegistry 的锁内修改，
// 保证 roomID 与房间 roster 始终一致。
type Session struct {
	identity Identity
	conn     Conn

	mu     sync.Mutex
	roomID string
}

func (s *Session) Identity() Identity { return s.identity }

func (s *Session) Conn() Conn { return s.conn }

// RoomID 返回当前所在房间，不在任何房间时为空。
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

func (s *Session) setRoom(id string) {
	s.mu.Lock()
	s.roomID = id
	s.mu.Unlock()
}

// SessionRegistry 维护连接到会话的映射，不触碰任何房间 roster。
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[Conn]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[Conn]*Session)}
}

// Bind 为连接创建会话；同一连接重复绑定返回 ErrDuplicateBinding。
func (r *SessionRegistry) Bind(conn Conn, identity Identity) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[conn]; ok {
		return nil, ErrDuplicateBinding
	}
	s := &Session{identity: identity, conn: conn}
	r.sessions[conn] = s
	return s, nil
}

func (r *SessionRegistry) Lookup(conn Conn) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[conn]
	return s, ok
}

func (r *SessionRegistry) Unbind(conn Conn) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conn]
	if ok {
		delete(r.sessions, conn)
	}
	return s, ok
}

func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
