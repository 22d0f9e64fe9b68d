package blobs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kvstash/kvstash/internal/kvstore"
)

// ErrInvalidPath 表示路径为空或试图逃逸根目录。
var ErrInvalidPath = errors.New("blobs: invalid path")

// Filesystem 以本地目录实现 kvstore.BlobStore，通过 entryLock 避免同一路径并发写入。
type Filesystem struct {
	root   string
	logger *logrus.Logger

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewFilesystem 以 root 为根目录构建 blob 存储，目录不存在时自动创建。
func NewFilesystem(root string, logger *logrus.Logger) (*Filesystem, error) {
	if root == "" {
		return nil, errors.New("blob path required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob path: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Filesystem{
		root:   abs,
		logger: logger,
		locks:  make(map[string]*entryLock),
	}, nil
}

// Root 返回绝对根目录。
func (s *Filesystem) Root() string {
	return s.root
}

func (s *Filesystem) Put(ctx context.Context, p string, body []byte, meta kvstore.BlobMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filePath, err := s.entryPath(p)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(p)
	defer unlock()

	header, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode blob metadata: %w", err)
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	w := bufio.NewWriter(tempFile)
	_, err = w.Write(header)
	if err == nil {
		err = w.WriteByte('\n')
	}
	if err == nil {
		_, err = w.Write(body)
	}
	if err == nil {
		err = w.Flush()
	}
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return fmt.Errorf("write blob: %w", err)
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("rename blob: %w", err)
	}
	return nil
}

func (s *Filesystem) Get(ctx context.Context, p string) ([]byte, kvstore.BlobMetadata, error) {
	var meta kvstore.BlobMetadata
	if err := ctx.Err(); err != nil {
		return nil, meta, err
	}
	filePath, err := s.entryPath(p)
	if err != nil {
		return nil, meta, err
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, meta, kvstore.ErrNotFound
		}
		if isDirError(filePath) {
			return nil, meta, kvstore.ErrNotFound
		}
		return nil, meta, fmt.Errorf("%w: %w", kvstore.ErrBackendUnavailable, err)
	}

	header, body, ok := bytes.Cut(raw, []byte{'\n'})
	if !ok {
		s.logger.WithFields(logrus.Fields{"action": "blob_read", "path": p}).Warn("blob missing metadata header")
		return nil, meta, fmt.Errorf("%w: malformed blob %s", kvstore.ErrBackendUnavailable, p)
	}
	if err := json.Unmarshal(header, &meta); err != nil {
		return nil, meta, fmt.Errorf("%w: decode blob metadata: %w", kvstore.ErrBackendUnavailable, err)
	}
	return body, meta, nil
}

// Remove 删除 blob 文件，不存在时返回 nil。
func (s *Filesystem) Remove(ctx context.Context, p string) error {
	filePath, err := s.entryPath(p)
	if err != nil {
		return err
	}
	unlock := s.lockEntry(p)
	defer unlock()

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Filesystem) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *Filesystem) entryPath(p string) (string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	if rel == "" {
		return "", ErrInvalidPath
	}
	filePath := filepath.Join(s.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, s.root+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filePath, nil
}

func isDirError(filePath string) bool {
	info, err := os.Stat(filePath)
	return err == nil && info.IsDir()
}
