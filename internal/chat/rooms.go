package chat

import (
	"context"
	"sync"

	"radiochat/internal/metrics"
	"radiochat/internal/models"
)

// RoomInfo 是活跃房间展示信息的快照。
type RoomInfo struct {
	ID            string
	Name          string
	DisplayName   string
	Kind          models.RoomKind
	CreatorID     string
	EncryptionKey string
}

func roomInfoOf(r *models.Room) RoomInfo {
	return RoomInfo{
		ID:            r.ID,
		Name:          r.Name,
		DisplayName:   r.DisplayName,
		Kind:          r.Kind,
		CreatorID:     r.CreatorID,
		EncryptionKey: r.EncryptionKey,
	}
}

// activeRoom 只在 RoomRegistry 内部使用，指针不会泄露给调用方。
type activeRoom struct {
	info   RoomInfo
	roster []*Session
}

func (ar *activeRoom) indexOf(s *Session) int {
	for i, m := range ar.roster {
		if m == s {
			return i
		}
	}
	return -1
}

// Loader 从持久层加载房间信息，房间不存在时返回 ErrRoomNotFound。
type Loader func(ctx context.Context, roomID string) (RoomInfo, error)

// orderLock 串行化同一房间的 "先持久化再广播"，保证广播顺序与落库顺序一致。
// 它按引用计数存活，与房间是否激活无关。
type orderLock struct {
	mu   sync.Mutex
	refs int
}

// RoomRegistry 管理活跃房间及其在线 roster。成员增删与空房间回收在同一把锁内完成。
type RoomRegistry struct {
	mu     sync.Mutex
	rooms  map[string]*activeRoom
	orders map[string]*orderLock
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[string]*activeRoom),
		orders: make(map[string]*orderLock),
	}
}

// GetOrActivate 返回已缓存的房间，或调用 load 加载后以空 roster 插入。
// load 在锁外执行；并发激活同一房间时先插入者胜出。
func (r *RoomRegistry) GetOrActivate(ctx context.Context, roomID string, load Loader) (RoomInfo, error) {
	r.mu.Lock()
	if ar, ok := r.rooms[roomID]; ok {
		info := ar.info
		r.mu.Unlock()
		return info, nil
	}
	r.mu.Unlock()

	info, err := load(ctx, roomID)
	if err != nil {
		return RoomInfo{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ar, ok := r.rooms[roomID]; ok {
		return ar.info, nil
	}
	r.rooms[roomID] = &activeRoom{info: info}
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	return info, nil
}

// AddMember 幂等地把会话加入房间 roster，返回是否为新加入。
// 如果房间在激活之后已被回收，则用 info 重新激活，不会挂到半回收的 roster 上。
// 会话若仍在其他房间，会先从那里移除。
func (r *RoomRegistry) AddMember(info RoomInfo, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev := s.RoomID(); prev != "" && prev != info.ID {
		r.removeLocked(prev, s)
	}
	ar, ok := r.rooms[info.ID]
	if !ok {
		ar = &activeRoom{info: info}
		r.rooms[info.ID] = ar
		metrics.ActiveRooms.Set(float64(len(r.rooms)))
	}
	if ar.indexOf(s) >= 0 {
		return false
	}
	ar.roster = append(ar.roster, s)
	s.setRoom(info.ID)
	return true
}

// RemoveMember 移除会话；roster 变空时在同一步里回收房间。
func (r *RoomRegistry) RemoveMember(roomID string, s *Session) (removed, evicted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(roomID, s)
}

func (r *RoomRegistry) removeLocked(roomID string, s *Session) (removed, evicted bool) {
	ar, ok := r.rooms[roomID]
	if !ok {
		return false, false
	}
	i := ar.indexOf(s)
	if i < 0 {
		return false, false
	}
	ar.roster = append(ar.roster[:i], ar.roster[i+1:]...)
	if s.RoomID() == roomID {
		s.setRoom("")
	}
	if len(ar.roster) == 0 {
		delete(r.rooms, roomID)
		metrics.ActiveRooms.Set(float64(len(r.rooms)))
		return true, true
	}
	return true, false
}

// ReleaseIfEmpty 在 roster 仍为空时回收房间，用于激活之后加入失败的情况。
func (r *RoomRegistry) ReleaseIfEmpty(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ar, ok := r.rooms[roomID]
	if !ok || len(ar.roster) > 0 {
		return false
	}
	delete(r.rooms, roomID)
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	return true
}

// Evict 无条件回收房间（房间被删除时），返回被移出的会话。
func (r *RoomRegistry) Evict(roomID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	ar, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	delete(r.rooms, roomID)
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	for _, s := range ar.roster {
		if s.RoomID() == roomID {
			s.setRoom("")
		}
	}
	return ar.roster
}

func (r *RoomRegistry) Get(roomID string) (RoomInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ar, ok := r.rooms[roomID]
	if !ok {
		return RoomInfo{}, false
	}
	return ar.info, true
}

// Roster 返回 roster 的副本。
func (r *RoomRegistry) Roster(roomID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	ar, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]*Session, len(ar.roster))
	copy(out, ar.roster)
	return out
}

// Online 返回房间在线会话数，未激活的房间为 0。
func (r *RoomRegistry) Online(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ar, ok := r.rooms[roomID]; ok {
		return len(ar.roster)
	}
	return 0
}

func (r *RoomRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *RoomRegistry) UpdateDisplay(roomID, name, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ar, ok := r.rooms[roomID]; ok {
		ar.info.Name = name
		ar.info.DisplayName = displayName
	}
}

func (r *RoomRegistry) UpdateCreator(roomID, creatorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ar, ok := r.rooms[roomID]; ok {
		ar.info.CreatorID = creatorID
	}
}

// Sequence 在房间的顺序锁内执行 fn。房间是否激活不影响加锁，
// 因此回收后重新激活的房间与仍在等待的调用方共用同一把锁。
func (r *RoomRegistry) Sequence(roomID string, fn func() error) error {
	r.mu.Lock()
	ol, ok := r.orders[roomID]
	if !ok {
		ol = &orderLock{}
		r.orders[roomID] = ol
	}
	ol.refs++
	r.mu.Unlock()

	ol.mu.Lock()
	defer func() {
		ol.mu.Unlock()
		r.mu.Lock()
		ol.refs--
		if ol.refs == 0 {
			delete(r.orders, roomID)
		}
		r.mu.Unlock()
	}()
	return fn()
}

// sequenced 返回当前持有或等待顺序锁的房间数。
func (r *RoomRegistry) sequenced() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}
