package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError(sectionField("", "ListenPort"), "必须在 1-65535")
	}
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError(sectionField("", "LogLevel"), "无法识别的日志级别")
		}
	}
	if g.StoragePath == "" {
		return newFieldError(sectionField("", "StoragePath"), "不能为空")
	}
	if g.CacheRoot == "" {
		return newFieldError(sectionField("", "CacheRoot"), "不能为空")
	}
	if g.CacheTTL.DurationValue() <= 0 {
		return newFieldError(sectionField("", "CacheTTL"), "必须大于 0")
	}
	if g.BackendTimeout.DurationValue() < 0 {
		return newFieldError(sectionField("", "BackendTimeout"), "不能为负数")
	}
	if strings.ContainsAny(g.UserHeaderName, " :\r\n") {
		return newFieldError(sectionField("", "UserHeaderName"), "不是合法的 Header 名称")
	}

	if err := c.validateRecords(); err != nil {
		return err
	}
	return c.validateBlobs()
}

func (c *Config) validateRecords() error {
	r := &c.Records
	switch r.Driver {
	case RecordsDriverMemory:
	case RecordsDriverPostgres:
		if r.DSN == "" {
			return newFieldError(sectionField("Records", "DSN"), "postgres 驱动必须提供 DSN")
		}
		if err := validateDSN(r.DSN); err != nil {
			return fmt.Errorf("%s: %w", sectionField("Records", "DSN"), err)
		}
	default:
		return newFieldError(sectionField("Records", "Driver"), "仅支持 memory|postgres")
	}

	size, err := units.FromHumanSize(r.MaxItemSize)
	if err != nil {
		return newFieldError(sectionField("Records", "MaxItemSize"), fmt.Sprintf("无法解析: %v", err))
	}
	if size <= 0 {
		return newFieldError(sectionField("Records", "MaxItemSize"), "必须大于 0")
	}
	r.maxItemSizeVal = size
	return nil
}

func (c *Config) validateBlobs() error {
	switch c.Blobs.Driver {
	case BlobsDriverMemory:
	case BlobsDriverFilesystem:
		if c.Blobs.Path == "" {
			return newFieldError(sectionField("Blobs", "Path"), "filesystem 驱动必须提供 Path")
		}
	default:
		return newFieldError(sectionField("Blobs", "Driver"), "仅支持 filesystem|memory")
	}
	return nil
}

func validateDSN(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("仅支持 postgres:// DSN: %s", parsed.Redacted())
	}
	if parsed.Host == "" {
		return fmt.Errorf("DSN 缺少 Host: %s", parsed.Redacted())
	}
	return nil
}
