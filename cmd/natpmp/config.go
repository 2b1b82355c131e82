package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/dep2p/go-natpmp/config"
	"github.com/dep2p/go-natpmp/internal/util/logger"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// buildConfig 构建配置
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（NATPMP_* 前缀）
//  3. 配置文件
//  4. 默认值
func buildConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := applyFlags(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags 应用显式设置的命令行参数
func applyFlags(cfg *config.Config) error {
	if isFlagSet("gateway") {
		cfg.Gateway = *gatewayAddr
	}
	if isFlagSet("port") {
		if *gatewayPort > math.MaxUint16 {
			return fmt.Errorf("-port %d 超出范围 (1-65535)", *gatewayPort)
		}
		cfg.GatewayPort = uint16(*gatewayPort)
	}
	if isFlagSet("retry") {
		cfg.Retry = *retry
	}
	if isFlagSet("lifetime") {
		cfg.Lifetime = config.Duration(*lifetime)
	}
	if isFlagSet("timeout") {
		cfg.Timeout = config.Duration(*timeout)
	}
	if isFlagSet("log-level") {
		cfg.Log.Level = *logLevel
	}
	if isFlagSet("log") {
		cfg.Log.File = *logFile
	}
	return nil
}

// setupLogging 设置日志级别、格式与输出
func setupLogging(cfg config.LogConfig) (*os.File, error) {
	logger.Configure(cfg.Level, cfg.Format)

	if cfg.File == "" {
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0750); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败: %w", err)
	}

	logger.SetOutput(file)
	return file, nil
}
