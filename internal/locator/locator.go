// Package locator 将任意 key 映射为确定性的分片存储路径，存储层与响应缓存共用同一算法。
package locator

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"path/filepath"
)

// Path 描述一个 key 的定位结果。
//
//	Digest = hex(sha256(key))
//	Shard  = Digest[0:2]/Digest[2:4]/Digest
type Path struct {
	Digest string
	Shard  string
}

// Derive 计算 key 的存储路径；空字符串同样合法。纯函数，可并发调用。
func Derive(key string) Path {
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	return Path{
		Digest: digest,
		Shard:  path.Join(digest[:2], digest[2:4], digest),
	}
}

// FilePath 返回 root 下的分片文件路径，供磁盘类后端直接使用。
func (p Path) FilePath(root string) string {
	return filepath.Join(root, filepath.FromSlash(p.Shard))
}

// String 返回分片路径，它同时作为结构化存储中的主键。
func (p Path) String() string {
	return p.Shard
}
