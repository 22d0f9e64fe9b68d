package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenHost:     "127.0.0.1",
			ListenPort:     5000,
			LogLevel:       "info",
			StoragePath:    "/tmp/kvstash",
			CacheRoot:      "/tmp/kvstash/cache",
			CacheTTL:       Duration(15 * time.Minute),
			BackendTimeout: Duration(10 * time.Second),
			UserHeaderName: "Uid",
		},
		Records: RecordsConfig{
			Driver:      RecordsDriverMemory,
			MaxItemSize: "400KB",
		},
		Blobs: BlobsConfig{
			Driver: BlobsDriverFilesystem,
			Path:   "/tmp/kvstash/blobs",
		},
	}
}
