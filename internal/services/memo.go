package services

import (
	"container/list"
	"sync"
)

// vectorMemo is a bounded in-process memo for embedding vectors. Entries are
// evicted in insertion order once capacity is reached; re-setting an existing
// key does not refresh its slot.
type vectorMemo struct {
	mu       sync.Mutex
	capacity int
	items    map[string][]float32
	order    *list.List
}

func newVectorMemo(capacity int) *vectorMemo {
	if capacity <= 0 {
		capacity = 1024
	}
	return &vectorMemo{
		capacity: capacity,
		items:    make(map[string][]float32, capacity),
		order:    list.New(),
	}
}

func (m *vectorMemo) Get(key string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vec, ok := m.items[key]
	return vec, ok
}

func (m *vectorMemo) Set(key string, value []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[key]; exists {
		m.items[key] = value
		return
	}
	m.items[key] = value
	m.order.PushBack(key)
	for m.order.Len() > m.capacity {
		front := m.order.Front()
		m.order.Remove(front)
		delete(m.items, front.Value.(string))
	}
}

func (m *vectorMemo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
