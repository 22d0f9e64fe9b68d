// Package kvstore 实现分层存储：小对象写入结构化记录存储，超出单条大小上限时自动回落到 blob 存储；
// 读取时先查结构化存储，未命中再查 blob 存储。两个后端均由调用方注入。
package kvstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound 表示某一层（或所有层）中都不存在该路径。
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrItemTooLarge 表示结构化存储拒绝了超过单条大小上限的记录，是回落 blob 层的唯一触发条件。
	ErrItemTooLarge = errors.New("kvstore: item too large")

	// ErrBackendUnavailable 包装后端的连接/传输错误。
	ErrBackendUnavailable = errors.New("kvstore: backend unavailable")
)

// Record 是结构化存储中的一行数据。
type Record struct {
	Key         string
	Path        string
	Body        []byte
	ContentType string
}

// Size 返回记录参与大小限制计算的字节数。
func (r Record) Size() int64 {
	return int64(len(r.Key) + len(r.Path) + len(r.Body) + len(r.ContentType))
}

// BlobMetadata 与 blob 正文一起保存。
type BlobMetadata struct {
	ContentType string `json:"content_type"`
	Key         string `json:"key"`
}

// RecordStore 是结构化、单条大小受限的存储层。
type RecordStore interface {
	// Put 以覆盖语义写入记录；超过大小上限时返回 ErrItemTooLarge。
	Put(ctx context.Context, path string, record Record) error
	// Get 返回路径对应的记录；不存在时返回 ErrNotFound。
	Get(ctx context.Context, path string) (*Record, error)
	// Delete 删除记录，不存在时也返回 nil。
	Delete(ctx context.Context, path string) error
}

// BlobStore 是无大小限制但更慢的存储层。
type BlobStore interface {
	Put(ctx context.Context, path string, body []byte, meta BlobMetadata) error
	// Get 不存在时返回 ErrNotFound。
	Get(ctx context.Context, path string) ([]byte, BlobMetadata, error)
}

// Tier 标识值最终所在的存储层。
type Tier string

const (
	TierRecords Tier = "records"
	TierBlobs   Tier = "blobs"
)

// Value 是一次读取的结果。
type Value struct {
	Key         string
	ContentType string
	Body        []byte
	Tier        Tier
}

// Batch 保存批量读取的结果，Keys 保持请求顺序，仅包含命中的 key。
type Batch struct {
	Keys   []string
	Values map[string]*Value
}

// Len 返回命中的 key 数量。
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Keys)
}
