package queue

import "sync"

// responseRegistry requestId -> 等待者, 由 CommandChannel 持有
// 注册是短生命周期的: 收到响应或超时后即移除
type responseRegistry struct {
	mu      sync.Mutex
	seq     uint64
	waiters map[string]map[uint64]chan ResponseMessage
}

func newResponseRegistry() *responseRegistry {
	return &responseRegistry{
		waiters: make(map[string]map[uint64]chan ResponseMessage),
	}
}

// register 返回接收通道与释放函数, 释放函数可重复调用
func (r *responseRegistry) register(requestID string) (<-chan ResponseMessage, func()) {
	ch := make(chan ResponseMessage, 1)

	r.mu.Lock()
	r.seq++
	token := r.seq
	if r.waiters[requestID] == nil {
		r.waiters[requestID] = make(map[uint64]chan ResponseMessage)
	}
	r.waiters[requestID][token] = ch
	r.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if set, ok := r.waiters[requestID]; ok {
				delete(set, token)
				if len(set) == 0 {
					delete(r.waiters, requestID)
				}
			}
		})
	}
	return ch, release
}

// deliver 投递给该 requestId 的全部等待者, 返回投递数量
func (r *responseRegistry) deliver(resp ResponseMessage) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for _, ch := range r.waiters[resp.RequestID] {
		select {
		case ch <- resp:
			delivered++
		default:
			// 已有一条响应待读取
		}
	}
	return delivered
}

// pending 当前等待中的 requestId 数量
func (r *responseRegistry) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
