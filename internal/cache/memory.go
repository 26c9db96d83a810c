package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Memory 在任意 Store 前加一层进程内 LRU。条目只写一次，所以不存在失效问题。
type Memory struct {
	next  Store
	items *lru.Cache[string, []byte]
}

func NewMemory(next Store, size int) (*Memory, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Memory{next: next, items: c}, nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if b, ok := m.items.Get(key); ok {
		return b, true, nil
	}
	b, ok, err := m.next.Get(ctx, key)
	if err != nil || !ok {
		return b, ok, err
	}
	m.items.Add(key, b)
	return b, true, nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	if m.items.Contains(key) {
		return true, nil
	}
	return m.next.Exists(ctx, key)
}

func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	if err := m.next.Put(ctx, key, value); err != nil {
		return err
	}
	m.items.Add(key, value)
	return nil
}

func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	if l, ok := m.next.(Lister); ok {
		return l.Keys(ctx)
	}
	return m.items.Keys(), nil
}
