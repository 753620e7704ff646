package orchestrator

import (
	"errors"
	"sync"
)

// ErrTurnInFlight 表示该会话已有一个轮次正在进行。
var ErrTurnInFlight = errors.New("a turn is already in flight for this conversation")

// Sessions 保证每个会话同一时刻至多一个轮次，并负责转发用户的停止指令。
type Sessions struct {
	mu     sync.Mutex
	active map[string]*session
}

type session struct {
	stop    chan struct{}
	stopped bool
}

// NewSessions 创建一个空的会话注册表。
func NewSessions() *Sessions {
	return &Sessions{active: make(map[string]*session)}
}

// Begin 为会话登记一个新轮次。返回的 stop 通道在 Stop 被调用时关闭，
// 轮次结束后必须调用 end 释放。
func (s *Sessions) Begin(conversationID string) (stop <-chan struct{}, end func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[conversationID]; ok {
		return nil, nil, ErrTurnInFlight
	}
	sess := &session{stop: make(chan struct{})}
	s.active[conversationID] = sess

	var once sync.Once
	end = func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.active[conversationID] == sess {
				delete(s.active, conversationID)
			}
		})
	}
	return sess.stop, end, nil
}

// Stop 通知正在进行的病人回复提前结束。没有进行中的轮次时返回 false。
func (s *Sessions) Stop(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.active[conversationID]
	if !ok {
		return false
	}
	if !sess.stopped {
		sess.stopped = true
		close(sess.stop)
	}
	return true
}
