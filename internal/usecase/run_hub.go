package usecase

import (
	"sync"

	"ModelHub/internal/domain/models"
)

// RunHub fans run events out to live subscribers such as websocket clients.
// Slow subscribers miss events rather than stall training.
type RunHub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]chan models.RunEvent
}

func NewRunHub() *RunHub {
	return &RunHub{subs: make(map[uint64]chan models.RunEvent)}
}

// Subscribe registers a buffered listener. The returned cancel closes the channel.
func (h *RunHub) Subscribe(buffer int) (<-chan models.RunEvent, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan models.RunEvent, buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast delivers ev to every subscriber with room in its buffer.
func (h *RunHub) Broadcast(ev models.RunEvent) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, ch := range h.subs {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Len reports the number of live subscribers.
func (h *RunHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
