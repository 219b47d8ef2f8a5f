package cache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LocalBackend keeps pages in process memory. blogd falls back to it when
// redis is disabled or unreachable.
type LocalBackend struct {
	lru *expirable.LRU[string, []byte]
}

// NewLocalBackend holds up to size pages for ttl each.
func NewLocalBackend(size int, ttl time.Duration) *LocalBackend {
	return &LocalBackend{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get returns the value stored under key.
func (b *LocalBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := b.lru.Get(key)
	return v, ok, nil
}

// Set ignores ttl; every entry shares the backend's ttl.
func (b *LocalBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.lru.Add(key, value)
	return nil
}

// DeleteByPrefix removes every key starting with prefix.
func (b *LocalBackend) DeleteByPrefix(_ context.Context, prefix string) (int64, error) {
	var n int64
	for _, key := range b.lru.Keys() {
		if strings.HasPrefix(key, prefix) && b.lru.Remove(key) {
			n++
		}
	}
	return n, nil
}
