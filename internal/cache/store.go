package cache

import (
	"errors"
	"time"
)

// Producer 在缓存未命中或强制刷新时生成新的 payload。
type Producer func() ([]byte, error)

// Entry 是磁盘上的原始条目，可能已经过期。
type Entry struct {
	Key     string
	Expires time.Time
	Payload []byte
}

// Expired 判断条目在 now 时刻是否已过期。
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.Expires)
}

// Result 表示一次读取的结果；Expires 为零值表示结果并非来自有效缓存（即新生成的值）。
type Result struct {
	Expires time.Time
	Payload []byte
}

// Valid 返回结果是否来自未过期的缓存条目。
func (r Result) Valid() bool {
	return !r.Expires.IsZero()
}

var (
	// ErrNotFound 表示缓存条目不存在。
	ErrNotFound = errors.New("cache entry not found")

	// ErrCorrupt 表示条目无法解析，调用方应按未命中处理。
	ErrCorrupt = errors.New("cache entry corrupt")
)
