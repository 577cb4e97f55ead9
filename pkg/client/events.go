package client

import (
	"sync"
	"time"
)

// State 单个逻辑请求的状态
type State int

const (
	StateQueued State = iota
	StateInFlight
	StateSucceeded
	StateRateLimited
	StateRetrying
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "QUEUED"
	case StateInFlight:
		return "IN_FLIGHT"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateRateLimited:
		return "RATE_LIMITED"
	case StateRetrying:
		return "RETRYING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// EventType 事件类型
type EventType int

const (
	// EventLoading 在途请求数变化
	EventLoading EventType = iota
	// EventStateChange 请求状态迁移
	EventStateChange
	// EventRateLimited 收到 429
	EventRateLimited
	// EventAuthFailure 收到 401/403
	EventAuthFailure
)

// Event 客户端事件
type Event struct {
	Type       EventType
	RequestID  uint64
	Method     string
	URL        string
	State      State
	Attempt    int
	InFlight   int
	Loading    bool
	RetryAfter time.Duration
	StatusCode int
	Err        error
}

type subscriber struct {
	ch    chan Event
	types map[EventType]struct{}
}

func (s *subscriber) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// hub 事件扇出；订阅者消费过慢时丢弃最旧事件，不阻塞请求路径
type hub struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]*subscriber
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]*subscriber)}
}

func (h *hub) subscribe(buffer int, types ...EventType) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (h *hub) publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.wants(e.Type) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- e:
			default:
			}
		}
	}
}
