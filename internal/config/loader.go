package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量覆盖的前缀，例如 KVSTASH_LISTENPORT、KVSTASH_RECORDS_DSN。
const EnvPrefix = "KVSTASH"

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量覆盖与校验逻辑。
// path 为空时仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := absolutize(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenHost", "127.0.0.1")
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("CacheRoot", "")
	v.SetDefault("CacheTTL", 900)
	v.SetDefault("BackendTimeout", "10s")
	v.SetDefault("Hostname", "")
	v.SetDefault("AppVersion", "")
	v.SetDefault("UserHeaderName", "Uid")
	v.SetDefault("Records.Driver", RecordsDriverMemory)
	v.SetDefault("Records.DSN", "")
	v.SetDefault("Records.MaxItemSize", "400KB")
	v.SetDefault("Records.AutoMigrate", true)
	v.SetDefault("Blobs.Driver", BlobsDriverFilesystem)
	v.SetDefault("Blobs.Path", "")
}

func applyGlobalDefaults(cfg *Config) {
	g := &cfg.Global
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.CacheTTL.DurationValue() == 0 {
		g.CacheTTL = Duration(900 * time.Second)
	}
	if g.BackendTimeout.DurationValue() < 0 {
		g.BackendTimeout = Duration(0)
	}
	if strings.TrimSpace(g.UserHeaderName) == "" {
		g.UserHeaderName = "Uid"
	}
	if g.Hostname == "" {
		if host, err := os.Hostname(); err == nil {
			g.Hostname = host
		}
	}
	if g.StoragePath != "" && g.CacheRoot == "" {
		g.CacheRoot = filepath.Join(g.StoragePath, "cache")
	}

	cfg.Records.Driver = strings.ToLower(strings.TrimSpace(cfg.Records.Driver))
	if cfg.Records.Driver == "" {
		cfg.Records.Driver = RecordsDriverMemory
	}
	if cfg.Records.MaxItemSize == "" {
		cfg.Records.MaxItemSize = "400KB"
	}

	cfg.Blobs.Driver = strings.ToLower(strings.TrimSpace(cfg.Blobs.Driver))
	if cfg.Blobs.Driver == "" {
		cfg.Blobs.Driver = BlobsDriverFilesystem
	}
	if g.StoragePath != "" && cfg.Blobs.Path == "" {
		cfg.Blobs.Path = filepath.Join(g.StoragePath, "blobs")
	}
}

func absolutize(cfg *Config) error {
	for _, target := range []*string{&cfg.Global.StoragePath, &cfg.Global.CacheRoot, &cfg.Blobs.Path} {
		if *target == "" {
			continue
		}
		abs, err := filepath.Abs(*target)
		if err != nil {
			return fmt.Errorf("无法解析目录 %s: %w", *target, err)
		}
		*target = abs
	}
	return nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
