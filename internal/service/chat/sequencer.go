package chat

import "sync"

// Sequencer 按房间串行化 "持久化 -> 广播"，保证同一房间 msg:new 的投递顺序与写入提交顺序一致
// 不同房间互不影响；房间锁在无人使用时回收
type Sequencer struct {
	mu    sync.Mutex
	rooms map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func NewSequencer() *Sequencer {
	return &Sequencer{rooms: make(map[string]*roomLock)}
}

// Do 在房间锁内执行 fn
func (s *Sequencer) Do(roomID string, fn func() error) error {
	s.mu.Lock()
	l, ok := s.rooms[roomID]
	if !ok {
		l = &roomLock{}
		s.rooms[roomID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.rooms, roomID)
		}
		s.mu.Unlock()
	}()
	return fn()
}

// size 当前持有的房间锁数量
func (s *Sequencer) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
