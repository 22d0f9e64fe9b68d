package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"

	"github.com/kvstash/kvstash/internal/blobs"
	"github.com/kvstash/kvstash/internal/cache"
	"github.com/kvstash/kvstash/internal/config"
	"github.com/kvstash/kvstash/internal/kvstore"
	"github.com/kvstash/kvstash/internal/logging"
	"github.com/kvstash/kvstash/internal/messages"
	"github.com/kvstash/kvstash/internal/records"
	"github.com/kvstash/kvstash/internal/server"
	"github.com/kvstash/kvstash/internal/server/routes"
	"github.com/kvstash/kvstash/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	printConfig bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const shutdownTimeout = 10 * time.Second

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	if opts.printConfig {
		if err := printEffectiveConfig(cfg); err != nil {
			fmt.Fprintf(stdErr, "输出配置失败: %v\n", err)
			return 1
		}
		return 0
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		for k, v := range cfg.Summary() {
			fields[k] = v
		}
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动遵循“配置 → 日志 → 存储后端 → 分层存储 → 文件缓存 → Fiber server”顺序，
	// 所有请求共享同一组存储与缓存实例。
	app, cleanup, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}
	defer cleanup()

	fields := logging.BaseFields("startup", opts.configPath)
	for k, v := range cfg.Summary() {
		fields[k] = v
	}
	fields["listen_port"] = cfg.Global.ListenPort
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := serve(app, cfg.ListenAddr(), logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("kvstash", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag  string
		checkOnly   bool
		printConfig bool
		showVer     bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 KVSTASH_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&printConfig, "print-config", false, "以 TOML 输出生效配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("KVSTASH_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		printConfig: printConfig,
		showVersion: showVer,
	}, nil
}

// buildApp 组装存储后端、缓存与路由；返回的 cleanup 负责释放连接池。
func buildApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*fiber.App, func(), error) {
	cleanup := func() {}

	recordStore, closeRecords, err := openRecordStore(ctx, cfg.Records)
	if err != nil {
		return nil, cleanup, err
	}
	cleanup = closeRecords

	blobStore, err := openBlobStore(cfg.Blobs, logger)
	if err != nil {
		return nil, cleanup, err
	}

	store, err := kvstore.NewTieredStore(recordStore, blobStore, logger, kvstore.Options{
		Timeout: cfg.Global.BackendTimeout.DurationValue(),
	})
	if err != nil {
		return nil, cleanup, err
	}

	fileCache, err := cache.NewFileCache(cfg.Global.CacheRoot, cache.WithLogger(logger))
	if err != nil {
		return nil, cleanup, fmt.Errorf("初始化缓存目录失败: %w", err)
	}
	decorator, err := cache.NewDecorator(fileCache, logger, cfg.Global.CacheTTL.DurationValue())
	if err != nil {
		return nil, cleanup, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger: logger,
		Identity: server.Identity{
			Hostname:   cfg.Global.Hostname,
			AppVersion: appVersion(cfg),
		},
		UserHeaderName: cfg.Global.UserHeaderName,
	})
	if err != nil {
		return nil, cleanup, err
	}

	routes.RegisterDiagnosticRoutes(app, routes.DiagnosticsOptions{
		StartedAt:  time.Now(),
		ListenPort: cfg.Global.ListenPort,
		Decorator:  decorator,
	})
	routes.RegisterMessageRoutes(app, messages.NewPublisher(stdOut))
	routes.RegisterKVRoutes(app, store)

	return app, cleanup, nil
}

func openRecordStore(ctx context.Context, cfg config.RecordsConfig) (kvstore.RecordStore, func(), error) {
	switch cfg.Driver {
	case config.RecordsDriverPostgres:
		if cfg.AutoMigrate {
			if err := records.Migrate(cfg.DSN); err != nil {
				return nil, func() {}, err
			}
		}
		pg, err := records.NewPostgres(ctx, records.PostgresOptions{
			DSN:         cfg.DSN,
			MaxItemSize: cfg.MaxItemSizeBytes(),
		})
		if err != nil {
			return nil, func() {}, err
		}
		return pg, pg.Close, nil
	case config.RecordsDriverMemory:
		return records.NewMemory(cfg.MaxItemSizeBytes()), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unsupported records driver %q", cfg.Driver)
	}
}

func openBlobStore(cfg config.BlobsConfig, logger *logrus.Logger) (kvstore.BlobStore, error) {
	switch cfg.Driver {
	case config.BlobsDriverFilesystem:
		fsStore, err := blobs.NewFilesystem(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return fsStore, nil
	case config.BlobsDriverMemory:
		return blobs.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported blobs driver %q", cfg.Driver)
	}
}

func appVersion(cfg *config.Config) string {
	if cfg.Global.AppVersion != "" {
		return cfg.Global.AppVersion
	}
	return version.Version
}

// serve 监听地址并在收到 SIGINT/SIGTERM 时优雅关闭。
func serve(app *fiber.App, addr string, logger *logrus.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"action": "listen",
			"addr":   addr,
		}).Info("Fiber 服务启动")
		errCh <- app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.WithFields(logrus.Fields{
			"action": "shutdown",
			"signal": sig.String(),
		}).Info("收到退出信号，开始优雅关闭")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	}
}

// effectiveConfig 是 -print-config 输出的 TOML 结构，全局字段位于顶层。
type effectiveConfig struct {
	config.GlobalConfig
	Records config.RecordsConfig `toml:"Records"`
	Blobs   config.BlobsConfig   `toml:"Blobs"`
}

func printEffectiveConfig(cfg *config.Config) error {
	recordsCfg := cfg.Records
	recordsCfg.DSN = redactDSN(recordsCfg.DSN)
	out, err := toml.Marshal(effectiveConfig{
		GlobalConfig: cfg.Global,
		Records:      recordsCfg,
		Blobs:        cfg.Blobs,
	})
	if err != nil {
		return err
	}
	_, err = stdOut.Write(out)
	return err
}

// redactDSN 隐藏 DSN 中的密码。
func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "<invalid>"
	}
	return parsed.Redacted()
}
