// Package cache 提供基于文件系统的 TTL 缓存，用于记忆化开销较大的视图计算。
// 条目路径由 locator 对缓存 key 做 sha256 分片得出，因此无需目录索引即可定位：
//
//	<CacheRoot>/<digest[0:2]>/<digest[2:4]>/<digest>
//
// 文件首行为十进制 Unix 秒级过期时间，其后为不透明的 payload。写入采用临时文件 + rename，
// 损坏或无法解析的条目一律视为未命中。条目不会被主动清理，磁盘占用随 key 的基数增长。
// Decorator 在此之上为 Fiber handler 提供按请求指纹缓存的能力。
package cache
