package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckConfigWritesFileLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "kvstash.log")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "info"
LogFilePath = "%s"
StoragePath = "%s"
`, logPath, filepath.Join(dir, "storage")))

	useBufferWriters(t)
	if code := run(cliOptions{configPath: configPath, checkOnly: true}); code != 0 {
		t.Fatalf("check-config 应成功，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}
	if stdOutBuffer().Len() != 0 {
		t.Fatalf("日志不应写入 stdout: %s", stdOutBuffer().String())
	}
	if info, err := os.Stat(logPath); err != nil || info.Size() == 0 {
		t.Fatalf("预期写入日志文件: %v", err)
	}
}

func TestLoggingFallbackDoesNotFailStartup(t *testing.T) {
	dir := t.TempDir()
	// 以普通文件占位，日志目录无法创建，与运行用户权限无关。
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("创建占位文件失败: %v", err)
	}

	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "info"
LogFilePath = "%s"
StoragePath = "%s"
`, filepath.Join(blocker, "sub", "kvstash.log"), filepath.Join(dir, "storage")))

	useBufferWriters(t)
	if code := run(cliOptions{configPath: configPath, checkOnly: true}); code != 0 {
		t.Fatalf("日志 fallback 不应导致失败，得到 %d", code)
	}
	if stdOutBuffer().Len() != 0 {
		t.Fatalf("fallback 日志应写入 stderr 而非 stdout")
	}
}
