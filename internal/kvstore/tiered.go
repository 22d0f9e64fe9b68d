package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kvstash/kvstash/internal/locator"
)

// Options 控制 TieredStore 的可选行为。
type Options struct {
	// Timeout 作用于每一次后端调用，0 表示不设置超时。
	Timeout time.Duration
}

// TieredStore 组合结构化存储与 blob 存储，自身不持有可变状态。
type TieredStore struct {
	records RecordStore
	blobs   BlobStore
	logger  *logrus.Logger
	timeout time.Duration
}

// NewTieredStore 注入两个后端构建分层存储。
func NewTieredStore(records RecordStore, blobs BlobStore, logger *logrus.Logger, opts Options) (*TieredStore, error) {
	if records == nil {
		return nil, errors.New("record store is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &TieredStore{
		records: records,
		blobs:   blobs,
		logger:  logger,
		timeout: opts.Timeout,
	}, nil
}

// Store 先写结构化存储；只有 ErrItemTooLarge 会触发回落到 blob 层，其他错误直接返回。
//
// 值从 blob 层缩小回结构化层时不会清理旧 blob，读取总是优先命中结构化层。
func (s *TieredStore) Store(ctx context.Context, key string, body []byte, contentType string) error {
	p := locator.Derive(key).String()
	record := Record{Key: key, Path: p, Body: body, ContentType: contentType}

	err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.records.Put(ctx, p, record)
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("store %q: %w", key, err)
	}

	s.logger.WithFields(logrus.Fields{
		"action": "kv_store",
		"path":   p,
		"size":   record.Size(),
		"tier":   TierBlobs,
	}).Debug("item too large for records tier, falling back to blobs")

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return s.blobs.Put(ctx, p, body, BlobMetadata{ContentType: contentType, Key: key})
	})
	if err != nil {
		return fmt.Errorf("store %q in blobs: %w", key, err)
	}
	return nil
}

// Read 先查结构化层，未命中再查 blob 层。后端故障只记录日志并视为该层未命中。
func (s *TieredStore) Read(ctx context.Context, key string) (*Value, error) {
	p := locator.Derive(key).String()

	var record *Record
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var getErr error
		record, getErr = s.records.Get(ctx, p)
		return getErr
	})
	switch {
	case err == nil:
		return &Value{Key: key, ContentType: record.ContentType, Body: record.Body, Tier: TierRecords}, nil
	case errors.Is(err, ErrNotFound):
	default:
		s.logReadFailure(TierRecords, key, p, err)
	}

	var (
		body []byte
		meta BlobMetadata
	)
	err = s.withTimeout(ctx, func(ctx context.Context) error {
		var getErr error
		body, meta, getErr = s.blobs.Get(ctx, p)
		return getErr
	})
	switch {
	case err == nil:
		return &Value{Key: key, ContentType: meta.ContentType, Body: body, Tier: TierBlobs}, nil
	case errors.Is(err, ErrNotFound):
		s.logger.WithFields(logrus.Fields{"action": "kv_read", "path": p}).Debug("key not found in any tier")
	default:
		s.logReadFailure(TierBlobs, key, p, err)
	}
	return nil, ErrNotFound
}

// Delete 只删除结构化层中的记录，不存在时同样成功。
func (s *TieredStore) Delete(ctx context.Context, key string) error {
	p := locator.Derive(key).String()
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.records.Delete(ctx, p)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// ReadMany 逐个读取 keys，只保留命中的 key；全部未命中时返回 ErrNotFound。
func (s *TieredStore) ReadMany(ctx context.Context, keys []string) (*Batch, error) {
	batch := &Batch{Values: make(map[string]*Value, len(keys))}
	for _, key := range keys {
		if _, dup := batch.Values[key]; dup {
			continue
		}
		value, err := s.Read(ctx, key)
		if err != nil {
			continue
		}
		batch.Keys = append(batch.Keys, key)
		batch.Values[key] = value
	}
	if batch.Len() == 0 {
		return nil, ErrNotFound
	}
	return batch, nil
}

func (s *TieredStore) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

func (s *TieredStore) logReadFailure(tier Tier, key, p string, err error) {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"action": "kv_read",
		"tier":   tier,
		"key":    key,
		"path":   p,
	}).Warn("backend read failed, treating as miss")
}
