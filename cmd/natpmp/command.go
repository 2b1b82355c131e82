package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/netip"
	"strconv"

	"golang.org/x/sync/errgroup"

	natpmp "github.com/dep2p/go-natpmp"
)

// command 解析后的子命令
type command struct {
	name      string
	protocols []natpmp.Protocol
	internal  uint16
	external  uint16
}

// parseCommand 解析子命令与位置参数
func parseCommand(args []string) (*command, error) {
	cmd := &command{name: args[0]}
	rest := args[1:]

	switch cmd.name {
	case "address":
		if len(rest) != 0 {
			return nil, fmt.Errorf("address 不接受参数")
		}

	case "map", "unmap":
		maxArgs := 2
		if cmd.name == "map" {
			maxArgs = 3
		}
		if len(rest) < 2 || len(rest) > maxArgs {
			return nil, fmt.Errorf("用法: %s <udp|tcp|both> <内部端口>", cmd.name)
		}
		protos, err := parseProtocols(rest[0])
		if err != nil {
			return nil, err
		}
		cmd.protocols = protos

		if cmd.internal, err = parsePort(rest[1]); err != nil {
			return nil, err
		}
		if cmd.internal == 0 {
			return nil, natpmp.ErrZeroInternalPort
		}
		if len(rest) == 3 {
			if cmd.external, err = parsePort(rest[2]); err != nil {
				return nil, err
			}
		}

	case "unmap-all":
		if len(rest) > 1 {
			return nil, fmt.Errorf("用法: unmap-all [udp|tcp|both]")
		}
		name := "both"
		if len(rest) == 1 {
			name = rest[0]
		}
		protos, err := parseProtocols(name)
		if err != nil {
			return nil, err
		}
		cmd.protocols = protos

	default:
		return nil, fmt.Errorf("未知命令: %q", cmd.name)
	}

	return cmd, nil
}

func parseProtocols(name string) ([]natpmp.Protocol, error) {
	if name == "both" {
		return []natpmp.Protocol{natpmp.UDP, natpmp.TCP}, nil
	}
	p, err := natpmp.ParseProtocol(name)
	if err != nil {
		return nil, err
	}
	return []natpmp.Protocol{p}, nil
}

func parsePort(s string) (uint16, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("无效端口 %q: %w", s, err)
	}
	return uint16(port), nil
}

// ============================================================================
//                              执行
// ============================================================================

// addressResult address 命令输出
type addressResult struct {
	Gateway           string `json:"gateway"`
	Address           string `json:"address"`
	SecondsSinceEpoch uint32 `json:"seconds_since_epoch"`
}

// mappingResult 映射命令输出
type mappingResult struct {
	Protocol          string `json:"protocol"`
	InternalPort      uint16 `json:"internal_port"`
	ExternalPort      uint16 `json:"external_port"`
	Lifetime          uint32 `json:"lifetime"`
	SecondsSinceEpoch uint32 `json:"seconds_since_epoch"`
}

func (r mappingResult) String() string {
	return fmt.Sprintf("protocol: %s, internal port: %d, external port: %d, lifetime: %d, seconds since epoch: %d",
		r.Protocol, r.InternalPort, r.ExternalPort, r.Lifetime, r.SecondsSinceEpoch)
}

// run 执行命令
//
// 多个协议并发执行，任一失败即返回该错误。
func (c *command) run(ctx context.Context, client *natpmp.Client) (any, error) {
	if c.name == "address" {
		gw, err := client.Gateway()
		if err != nil {
			return nil, err
		}
		resp, err := client.ExternalAddress(ctx, natpmp.WithGateway(gw))
		if err != nil {
			return nil, err
		}
		return addressResult{
			Gateway:           gw.String(),
			Address:           resp.Address.String(),
			SecondsSinceEpoch: resp.SecondsSinceEpoch,
		}, nil
	}

	// 只发现一次网关
	gw, err := client.Gateway()
	if err != nil {
		return nil, err
	}

	results := make([]mappingResult, len(c.protocols))
	g, gctx := errgroup.WithContext(ctx)
	for i, proto := range c.protocols {
		g.Go(func() error {
			m, err := c.runOne(gctx, client, gw, proto)
			if err != nil {
				return fmt.Errorf("%s: %w", proto, err)
			}
			results[i] = mappingResult{
				Protocol:          m.Protocol.String(),
				InternalPort:      m.InternalPort,
				ExternalPort:      m.ExternalPort,
				Lifetime:          m.Lifetime,
				SecondsSinceEpoch: m.SecondsSinceEpoch,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *command) runOne(ctx context.Context, client *natpmp.Client, gw netip.Addr, proto natpmp.Protocol) (*natpmp.MappingResult, error) {
	opt := natpmp.WithGateway(gw)
	switch c.name {
	case "map":
		return client.MapPort(ctx, proto, c.internal, opt, natpmp.WithExternalPort(c.external))
	case "unmap":
		return client.UnmapPort(ctx, proto, c.internal, opt)
	default:
		return client.UnmapAllPorts(ctx, proto, opt)
	}
}

// printResult 输出结果
func printResult(w io.Writer, result any, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	switch r := result.(type) {
	case addressResult:
		_, err := fmt.Fprintf(w, "gateway: %s, public address: %s, seconds since epoch: %d\n",
			r.Gateway, r.Address, r.SecondsSinceEpoch)
		return err
	case []mappingResult:
		for _, m := range r {
			if _, err := fmt.Fprintln(w, m.String()); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := fmt.Fprintln(w, r)
		return err
	}
}
