// Package main 提供 natpmp 命令行工具
//
// 用法:
//
//	natpmp [选项] address
//	natpmp [选项] map <udp|tcp|both> <内部端口> [外部端口]
//	natpmp [选项] unmap <udp|tcp|both> <内部端口>
//	natpmp [选项] unmap-all [udp|tcp|both]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	natpmp "github.com/dep2p/go-natpmp"
	"github.com/dep2p/go-natpmp/config"
	"github.com/dep2p/go-natpmp/internal/util/logger"
)

var log = logger.Logger("natpmp.cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	// ─────────────────────────────────────────────────────────────────────
	// 网关参数
	// ─────────────────────────────────────────────────────────────────────
	gatewayAddr = flag.String("gateway", "", "网关 IPv4 地址（默认自动发现）")
	gatewayPort = flag.Uint("port", 5351, "网关 NAT-PMP 端口")
	configFile  = flag.String("config", "", "配置文件路径")

	// ─────────────────────────────────────────────────────────────────────
	// 请求参数
	// ─────────────────────────────────────────────────────────────────────
	retry    = flag.Uint("retry", 9, "最大发送次数")
	lifetime = flag.Duration("lifetime", config.DefaultLifetime, "映射租期")
	timeout  = flag.Duration("timeout", 0, "命令总超时（0 = 不限制）")

	// ─────────────────────────────────────────────────────────────────────
	// 输出与日志
	// ─────────────────────────────────────────────────────────────────────
	jsonOutput = flag.Bool("json", false, "以 JSON 输出结果")
	logLevel   = flag.String("log-level", "", "日志级别，例如 debug 或 natpmp.transport=debug,warn")
	logFile    = flag.String("log", "", "日志文件路径")

	// ─────────────────────────────────────────────────────────────────────
	// 信息显示
	// ─────────────────────────────────────────────────────────────────────
	showVersion = flag.Bool("version", false, "显示版本信息")
	showHelp    = flag.Bool("help", false, "显示帮助信息")
)

func main() {
	flag.Usage = printHelp
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		printVersion()
		return nil
	}
	if *showHelp || flag.NArg() == 0 {
		printHelp()
		return nil
	}

	cmd, err := parseCommand(flag.Args())
	if err != nil {
		return err
	}

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	logFileHandle, err := setupLogging(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "警告: %v\n", err)
		fmt.Fprintln(os.Stderr, "将继续使用控制台输出日志")
	}
	if logFileHandle != nil {
		defer func() { _ = logFileHandle.Close() }()
	}

	opts, err := natpmp.OptionsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	client, err := natpmp.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := cfg.Timeout.Duration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	log.Info("执行命令", "version", natpmp.Version, "command", cmd.name, "gateway", cfg.Gateway)

	result, err := cmd.run(ctx, client)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, result, *jsonOutput)
}

// exitCode 按错误类别返回退出码
func exitCode(err error) int {
	switch {
	case errors.Is(err, natpmp.ErrResponse):
		return 2
	case errors.Is(err, natpmp.ErrUnsupported):
		return 3
	case errors.Is(err, natpmp.ErrNetwork):
		return 4
	default:
		return 1
	}
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("natpmp %s\n", natpmp.Version)
	if natpmp.GitCommit != "" {
		fmt.Printf("  commit: %s\n", natpmp.GitCommit)
	}
	if natpmp.BuildDate != "" {
		fmt.Printf("  built:  %s\n", natpmp.BuildDate)
	}
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("natpmp - NAT-PMP (RFC 6886) 客户端")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  natpmp [选项] address                                  # 查询公网地址")
	fmt.Println("  natpmp [选项] map <udp|tcp|both> <内部端口> [外部端口]  # 创建映射")
	fmt.Println("  natpmp [选项] unmap <udp|tcp|both> <内部端口>           # 删除映射")
	fmt.Println("  natpmp [选项] unmap-all [udp|tcp|both]                 # 删除全部映射")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  NATPMP_GATEWAY, NATPMP_GATEWAY_PORT, NATPMP_RETRY, NATPMP_LIFETIME,")
	fmt.Println("  NATPMP_TIMEOUT, NATPMP_LOG_FILE, NATPMP_LOG_LEVEL, NATPMP_LOG_FORMAT")
}
