// Package blobs 提供 kvstore 的 blob 层后端。磁盘布局沿用 locator 的分片：
//
//	<Root>/<digest[0:2]>/<digest[2:4]>/<digest>
//
// 每个文件首行为 JSON 元数据（content_type、key），其后为原始正文；写入通过临时文件 + rename 保证原子性。
package blobs
