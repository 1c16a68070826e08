package chat

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

const registryShards = 32

// ErrConnExists 同一个连接 id 重复注册，属于调用方的编程错误
var ErrConnExists = errors.New("connection already registered")

// State 连接的类型化状态，由 Registry 持有
type State struct {
	ConnID     string
	UserID     string
	LastSendAt time.Time
}

type connEntry struct {
	conn       *Conn
	rooms      map[string]struct{}
	lastSendAt time.Time
}

type connShard struct {
	mu    sync.RWMutex
	conns map[string]*connEntry
}

type setShard struct {
	mu   sync.RWMutex
	sets map[string]map[string]struct{}
}

// Registry 本进程的在线连接簿记
// connId -> rooms、roomId -> connIds、userId -> connIds 三个索引按 key 分片加锁
//
// 为什么分片而不是一把大锁：广播热路径只读 roomId 索引，
// 一把全局锁会让所有房间的发送和别处的加入/断开互相排队。
// 为什么任何时候只持有一把分片锁：三个索引的分片顺序不固定，
// 嵌套加锁就需要全局锁序，否则会死锁。代价是跨索引的更新不是原子的，
// 由 Unregister 先摘连接、Join 收尾回查来修正并发留下的残余。
type Registry struct {
	conns [registryShards]connShard
	rooms [registryShards]setShard
	users [registryShards]setShard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := 0; i < registryShards; i++ {
		r.conns[i].conns = make(map[string]*connEntry)
		r.rooms[i].sets = make(map[string]map[string]struct{})
		r.users[i].sets = make(map[string]map[string]struct{})
	}
	return r
}

func shardOf(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % registryShards)
}

// Register 登记连接，id 已存在返回 ErrConnExists
func (r *Registry) Register(conn *Conn) error {
	cs := &r.conns[shardOf(conn.ID)]
	cs.mu.Lock()
	if _, ok := cs.conns[conn.ID]; ok {
		cs.mu.Unlock()
		return ErrConnExists
	}
	cs.conns[conn.ID] = &connEntry{conn: conn, rooms: make(map[string]struct{})}
	cs.mu.Unlock()

	addToSet(&r.users[shardOf(conn.UserID)], conn.UserID, conn.ID)
	return nil
}

// Join 幂等，返回是否新加入；连接不存在返回 false
//  1. 在连接分片里记下房间
//  2. 释放后再写房间分片的反向索引
//  3. 回查连接是否还在，不在说明 Unregister 已经抢先扫过，撤掉第 2 步写入的索引
func (r *Registry) Join(connID, roomID string) bool {
	cs := &r.conns[shardOf(connID)]
	cs.mu.Lock()
	entry, ok := cs.conns[connID]
	if !ok {
		cs.mu.Unlock()
		return false
	}
	if _, joined := entry.rooms[roomID]; joined {
		cs.mu.Unlock()
		return false
	}
	entry.rooms[roomID] = struct{}{}
	cs.mu.Unlock()

	rs := &r.rooms[shardOf(roomID)]
	addToSet(rs, roomID, connID)

	// 与 Unregister 并发时，连接可能已经被移除，这里把刚加进去的房间索引撤掉
	cs.mu.RLock()
	_, alive := cs.conns[connID]
	cs.mu.RUnlock()
	if !alive {
		removeFromSet(rs, roomID, connID)
		return false
	}
	return true
}

// Leave 幂等，返回是否确实离开
func (r *Registry) Leave(connID, roomID string) bool {
	cs := &r.conns[shardOf(connID)]
	cs.mu.Lock()
	entry, ok := cs.conns[connID]
	if !ok {
		cs.mu.Unlock()
		return false
	}
	if _, joined := entry.rooms[roomID]; !joined {
		cs.mu.Unlock()
		return false
	}
	delete(entry.rooms, roomID)
	cs.mu.Unlock()

	removeFromSet(&r.rooms[shardOf(roomID)], roomID, connID)
	return true
}

// ConnectionsInRoom 本进程订阅了该房间的连接 id
func (r *Registry) ConnectionsInRoom(roomID string) []string {
	return members(&r.rooms[shardOf(roomID)], roomID)
}

// ConnectionsOf 本进程上该用户的连接 id
func (r *Registry) ConnectionsOf(userID string) []string {
	return members(&r.users[shardOf(userID)], userID)
}

// RoomsOf 连接已订阅的房间
func (r *Registry) RoomsOf(connID string) []string {
	cs := &r.conns[shardOf(connID)]
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	entry, ok := cs.conns[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(entry.rooms))
	for roomID := range entry.rooms {
		out = append(out, roomID)
	}
	return out
}

// Lookup 取连接句柄
func (r *Registry) Lookup(connID string) (*Conn, bool) {
	cs := &r.conns[shardOf(connID)]
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	entry, ok := cs.conns[connID]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}

// State 连接状态快照
func (r *Registry) State(connID string) (State, bool) {
	cs := &r.conns[shardOf(connID)]
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	entry, ok := cs.conns[connID]
	if !ok {
		return State{}, false
	}
	return State{ConnID: connID, UserID: entry.conn.UserID, LastSendAt: entry.lastSendAt}, true
}

// MarkSend 记录最近一次被接受的 msg:send 时间
func (r *Registry) MarkSend(connID string, at time.Time) {
	cs := &r.conns[shardOf(connID)]
	cs.mu.Lock()
	if entry, ok := cs.conns[connID]; ok {
		entry.lastSendAt = at
	}
	cs.mu.Unlock()
}

// All 本进程全部连接
func (r *Registry) All() []*Conn {
	var out []*Conn
	for i := range r.conns {
		cs := &r.conns[i]
		cs.mu.RLock()
		for _, entry := range cs.conns {
			out = append(out, entry.conn)
		}
		cs.mu.RUnlock()
	}
	return out
}

// Unregister 移除连接及其全部房间订阅
// last 表示这是该用户在本进程上的最后一条连接；ok=false 表示连接本来就不存在
// 先摘掉连接条目再清反向索引，此后并发的 Join 都会在回查时发现连接已不在
func (r *Registry) Unregister(connID string) (userID string, last bool, ok bool) {
	cs := &r.conns[shardOf(connID)]
	cs.mu.Lock()
	entry, found := cs.conns[connID]
	if !found {
		cs.mu.Unlock()
		return "", false, false
	}
	delete(cs.conns, connID)
	cs.mu.Unlock()

	for roomID := range entry.rooms {
		removeFromSet(&r.rooms[shardOf(roomID)], roomID, connID)
	}

	userID = entry.conn.UserID
	us := &r.users[shardOf(userID)]
	us.mu.Lock()
	set := us.sets[userID]
	delete(set, connID)
	if len(set) == 0 {
		delete(us.sets, userID)
		last = true
	}
	us.mu.Unlock()
	return userID, last, true
}

func addToSet(s *setShard, key, id string) {
	s.mu.Lock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[id] = struct{}{}
	s.mu.Unlock()
}

func removeFromSet(s *setShard, key, id string) {
	s.mu.Lock()
	if set, ok := s.sets[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(s.sets, key)
		}
	}
	s.mu.Unlock()
}

func members(s *setShard, key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.sets[key]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
