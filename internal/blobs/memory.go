package blobs

import (
	"context"
	"sync"

	"github.com/kvstash/kvstash/internal/kvstore"
)

type memoryBlob struct {
	body []byte
	meta kvstore.BlobMetadata
}

// Memory 是基于 map 的 BlobStore，用于开发与测试。
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

// NewMemory 创建空的内存 blob 存储。
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]memoryBlob)}
}

func (m *Memory) Put(ctx context.Context, p string, body []byte, meta kvstore.BlobMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.blobs[p] = memoryBlob{body: append([]byte(nil), body...), meta: meta}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(ctx context.Context, p string) ([]byte, kvstore.BlobMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, kvstore.BlobMetadata{}, err
	}
	m.mu.RLock()
	blob, ok := m.blobs[p]
	m.mu.RUnlock()
	if !ok {
		return nil, kvstore.BlobMetadata{}, kvstore.ErrNotFound
	}
	return append([]byte(nil), blob.body...), blob.meta, nil
}

// Len 返回 blob 数量。
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
