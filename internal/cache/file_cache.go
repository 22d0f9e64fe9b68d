package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kvstash/kvstash/internal/locator"
)

// Option 配置 FileCache。
type Option func(*FileCache)

// WithClock 替换缓存使用的时钟，测试中可模拟时间流逝。
func WithClock(now func() time.Time) Option {
	return func(c *FileCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger 注入日志实例。
func WithLogger(logger *logrus.Logger) Option {
	return func(c *FileCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// FileCache 以 basePath 为根目录保存缓存条目，整站复用一份实例。
type FileCache struct {
	basePath string
	now      func() time.Time
	logger   *logrus.Logger

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewFileCache 以 basePath 为根目录构建文件缓存，目录不存在时自动创建。
func NewFileCache(basePath string, opts ...Option) (*FileCache, error) {
	if basePath == "" {
		return nil, errors.New("cache root required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}

	c := &FileCache{
		basePath: abs,
		now:      time.Now,
		logger:   logrus.StandardLogger(),
		locks:    make(map[string]*entryLock),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root 返回缓存根目录的绝对路径。
func (c *FileCache) Root() string {
	return c.basePath
}

// Write 以 now+ttl 作为过期时间写入 payload，完整替换旧条目。
func (c *FileCache) Write(key string, payload []byte, ttl time.Duration) error {
	filePath := c.entryPath(key)
	expires := c.now().Add(ttl)

	unlock := c.lockEntry(filePath)
	defer unlock()

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	var buf bytes.Buffer
	buf.Grow(len(payload) + 21)
	buf.WriteString(strconv.FormatInt(expires.Unix(), 10))
	buf.WriteByte('\n')
	buf.Write(payload)

	_, err = tempFile.Write(buf.Bytes())
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

// Peek 返回磁盘上的原始条目（可能已过期）。不存在时返回 ErrNotFound，无法解析时返回 ErrCorrupt。
func (c *FileCache) Peek(key string) (Entry, error) {
	filePath := c.entryPath(key)
	raw, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	line, payload, ok := bytes.Cut(raw, []byte{'\n'})
	if !ok {
		return Entry{}, fmt.Errorf("%w: missing expiration line", ErrCorrupt)
	}
	seconds, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return Entry{
		Key:     key,
		Expires: time.Unix(seconds, 0),
		Payload: payload,
	}, nil
}

// Read 返回未过期的缓存值。缺失、过期或损坏时调用 producer 生成新值（不写回），
// producer 为空时返回空 Result。
func (c *FileCache) Read(key string, producer Producer) (Result, error) {
	entry, err := c.Peek(key)
	switch {
	case err == nil:
		if !entry.Expired(c.now()) {
			return Result{Expires: entry.Expires, Payload: entry.Payload}, nil
		}
	case errors.Is(err, ErrNotFound):
	default:
		c.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_read",
			"path":   c.entryPath(key),
		}).Debug("cache entry unreadable, treating as miss")
	}

	if producer == nil {
		return Result{}, nil
	}
	payload, err := producer()
	if err != nil {
		return Result{}, err
	}
	return Result{Payload: payload}, nil
}

// GetOrPopulate 在 force 时跳过读取直接调用 producer，否则委托给 Read。
// 无论命中与否，结果都会以 now+ttl 重新写回，因此每次读取都会刷新过期窗口。
// 写回失败只记录日志。
func (c *FileCache) GetOrPopulate(key string, ttl time.Duration, producer Producer, force bool) (Result, error) {
	if producer == nil {
		return Result{}, errors.New("producer required")
	}

	var (
		result Result
		err    error
	)
	if force {
		var payload []byte
		payload, err = producer()
		result = Result{Payload: payload}
	} else {
		result, err = c.Read(key, producer)
	}
	if err != nil {
		return Result{}, err
	}

	if writeErr := c.Write(key, result.Payload, ttl); writeErr != nil {
		c.logger.WithError(writeErr).WithFields(logrus.Fields{
			"action": "cache_write",
			"path":   c.entryPath(key),
		}).Warn("cache write failed")
	}
	return result, nil
}

func (c *FileCache) entryPath(key string) string {
	return locator.Derive(key).FilePath(c.basePath)
}

func (c *FileCache) lockEntry(key string) func() {
	c.mu.Lock()
	lock := c.locks[key]
	if lock == nil {
		lock = &entryLock{}
		c.locks[key] = lock
	}
	lock.refs++
	c.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		c.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(c.locks, key)
		}
		c.mu.Unlock()
	}
}
