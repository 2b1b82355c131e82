package natpmp

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-natpmp/config"
	"github.com/dep2p/go-natpmp/internal/util/logger"
)

var fxLogger = logger.Logger("natpmp.fx")

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Config 配置（可选）
	Config *config.Config `optional:"true"`

	// Metrics 传输层指标（可选）
	Metrics *Metrics `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Client NAT-PMP 客户端
	Client *Client
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideClient 根据配置创建客户端
func ProvideClient(input ModuleInput) (ModuleOutput, error) {
	cfg := input.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}

	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return ModuleOutput{}, err
	}
	if input.Metrics != nil {
		opts = append(opts, WithMetrics(input.Metrics))
	}

	client, err := NewClient(opts...)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Client: client}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
//
// 依赖可选的 *config.Config 与 *Metrics，提供 *Client。
func Module() fx.Option {
	return fx.Module("natpmp",
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.Provide(ProvideClient),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC     fx.Lifecycle
	Client *Client
	Config *config.Config `optional:"true"`
}

// stopTimeout 停止时删除映射的最长等待
const stopTimeout = 5 * time.Second

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	unmapOnStop := input.Config != nil && input.Config.UnmapOnStop

	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			gw, err := input.Client.Gateway()
			if err != nil {
				// 网关可能稍后才可用，不阻止启动
				fxLogger.Warn("NAT-PMP 网关不可用", "err", err)
				return nil
			}
			fxLogger.Info("NAT-PMP 模块启动", "gateway", gw.String())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			fxLogger.Info("NAT-PMP 模块停止")
			if !unmapOnStop {
				return nil
			}

			stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
			defer cancel()
			if err := input.Client.UnmapAllProtocols(stopCtx); err != nil {
				fxLogger.Warn("删除端口映射失败", "err", err)
			}
			return nil
		},
	})
}

// ============================================================================
//                              模块元信息
// ============================================================================

// 模块元信息常量
const (
	ModuleName        = "natpmp"
	ModuleDescription = "NAT-PMP 客户端：公网地址查询与端口映射"
)
