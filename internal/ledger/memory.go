package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory keeps the ledger in process memory.
type Memory struct {
	mu     sync.Mutex
	stacks map[string][]Item
	now    func() time.Time
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{stacks: make(map[string][]Item), now: time.Now}
}

func (m *Memory) Pop(_ context.Context, location string) (Item, []Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.stacks[location]
	if len(stack) == 0 {
		return Item{}, nil, fmt.Errorf("%w: %s", ErrEmpty, location)
	}
	top := stack[len(stack)-1]
	rest := append([]Item(nil), stack[:len(stack)-1]...)
	if len(rest) == 0 {
		delete(m.stacks, location)
	} else {
		m.stacks[location] = rest
	}
	return top, append([]Item(nil), rest...), nil
}

func (m *Memory) Push(_ context.Context, location string, item Item) error {
	if item.ID == "" {
		return fmt.Errorf("ledger: item id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item.Location = location
	item.UpdatedAt = m.now().UTC()
	m.stacks[location] = append(m.stacks[location], item)
	return nil
}

func (m *Memory) Contents(_ context.Context, location string) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Item(nil), m.stacks[location]...), nil
}

func (m *Memory) Locations(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.stacks))
	for name := range m.stacks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Close() error { return nil }
