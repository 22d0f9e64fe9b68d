package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// MarshalText 以 Go Duration 字符串输出，-print-config 依赖它生成可回读的 TOML。
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 支持的后端驱动。
const (
	RecordsDriverMemory   = "memory"
	RecordsDriverPostgres = "postgres"

	BlobsDriverFilesystem = "filesystem"
	BlobsDriverMemory     = "memory"
)

// GlobalConfig 描述全局运行时行为。
type GlobalConfig struct {
	ListenHost     string   `mapstructure:"ListenHost" toml:"ListenHost"`
	ListenPort     int      `mapstructure:"ListenPort" toml:"ListenPort"`
	LogLevel       string   `mapstructure:"LogLevel" toml:"LogLevel"`
	LogFilePath    string   `mapstructure:"LogFilePath" toml:"LogFilePath"`
	LogMaxSize     int      `mapstructure:"LogMaxSize" toml:"LogMaxSize"`
	LogMaxBackups  int      `mapstructure:"LogMaxBackups" toml:"LogMaxBackups"`
	LogCompress    bool     `mapstructure:"LogCompress" toml:"LogCompress"`
	StoragePath    string   `mapstructure:"StoragePath" toml:"StoragePath"`
	CacheRoot      string   `mapstructure:"CacheRoot" toml:"CacheRoot"`
	CacheTTL       Duration `mapstructure:"CacheTTL" toml:"CacheTTL"`
	BackendTimeout Duration `mapstructure:"BackendTimeout" toml:"BackendTimeout"`
	Hostname       string   `mapstructure:"Hostname" toml:"Hostname"`
	AppVersion     string   `mapstructure:"AppVersion" toml:"AppVersion"`
	UserHeaderName string   `mapstructure:"UserHeaderName" toml:"UserHeaderName"`
}

// RecordsConfig 配置结构化存储层。
type RecordsConfig struct {
	Driver      string `mapstructure:"Driver" toml:"Driver"`
	DSN         string `mapstructure:"DSN" toml:"DSN"`
	MaxItemSize string `mapstructure:"MaxItemSize" toml:"MaxItemSize"`
	AutoMigrate bool   `mapstructure:"AutoMigrate" toml:"AutoMigrate"`

	maxItemSizeVal int64
}

// MaxItemSizeBytes 返回 Validate 解析后的单条记录上限（字节）。
func (r RecordsConfig) MaxItemSizeBytes() int64 {
	return r.maxItemSizeVal
}

// BlobsConfig 配置 blob 存储层。
type BlobsConfig struct {
	Driver string `mapstructure:"Driver" toml:"Driver"`
	Path   string `mapstructure:"Path" toml:"Path"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig  `mapstructure:",squash"`
	Records RecordsConfig `mapstructure:"Records"`
	Blobs   BlobsConfig   `mapstructure:"Blobs"`
}

// ListenAddr 返回 host:port 形式的监听地址。
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Global.ListenHost, c.Global.ListenPort)
}

// Summary 返回启动日志使用的后端摘要，例如 records=postgres blobs=filesystem。
func (c *Config) Summary() map[string]string {
	return map[string]string{
		"records": c.Records.Driver,
		"blobs":   c.Blobs.Driver,
	}
}
