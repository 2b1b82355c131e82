// Package gateway 发现默认网关的 IPv4 地址
//
// 优先使用 jackpal/gateway 读取系统路由表；失败或结果不是 IPv4 时，
// 回退到解析 /proc/net/route（Linux）。
package gateway

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"

	jgateway "github.com/jackpal/gateway"

	"github.com/dep2p/go-natpmp/internal/util/logger"
	"github.com/dep2p/go-natpmp/pkg/protocol"
)

var log = logger.Logger("natpmp.gateway")

// PathProcNetRoute Linux 路由表路径
const PathProcNetRoute = "/proc/net/route"

// ErrNoDefaultRoute 路由表中没有默认路由
var ErrNoDefaultRoute = errors.New("no default gateway found")

// Discoverer 网关发现函数
type Discoverer func() (netip.Addr, error)

// Resolver 网关发现器
//
// 各字段可替换，便于测试。
type Resolver struct {
	// System 系统路由表查询
	System func() (net.IP, error)

	// RouteTable 打开路由表文件
	RouteTable func() (io.ReadCloser, error)
}

// DefaultResolver 返回使用系统实现的发现器
func DefaultResolver() *Resolver {
	return &Resolver{
		System: jgateway.DiscoverGateway,
		RouteTable: func() (io.ReadCloser, error) {
			return os.Open(PathProcNetRoute)
		},
	}
}

// Discover 使用默认发现器查找默认网关
func Discover() (netip.Addr, error) {
	return DefaultResolver().Discover()
}

// Discover 查找默认网关的 IPv4 地址
//
// 找不到时返回 Generic 类别的 NAT-PMP 错误，调用方不应重试。
func (r *Resolver) Discover() (netip.Addr, error) {
	var causes []error

	if r.System != nil {
		ip, err := r.System()
		if err == nil {
			if addr, ok := netip.AddrFromSlice(ip); ok && addr.Unmap().Is4() {
				log.Debug("发现默认网关", "gateway", addr.Unmap().String(), "source", "system")
				return addr.Unmap(), nil
			}
			err = fmt.Errorf("gateway %s is not IPv4", ip)
		}
		log.Debug("系统网关发现失败", "err", err)
		causes = append(causes, err)
	}

	if r.RouteTable != nil {
		addr, err := r.fromRouteTable()
		if err == nil {
			log.Debug("发现默认网关", "gateway", addr.String(), "source", PathProcNetRoute)
			return addr, nil
		}
		causes = append(causes, err)
	}

	return netip.Addr{}, protocol.GenericError(ErrNoDefaultRoute.Error(), errors.Join(causes...))
}

func (r *Resolver) fromRouteTable() (netip.Addr, error) {
	f, err := r.RouteTable()
	if err != nil {
		return netip.Addr{}, err
	}
	defer func() { _ = f.Close() }()
	return ParseRouteTable(f)
}

// ParseRouteTable 解析 /proc/net/route 格式的路由表
//
// 跳过标题行，返回第一条 Destination 为 0 且 Gateway 非 0 的记录。
// 地址字段是主机字节序（小端）的十六进制。
func ParseRouteTable(r io.Reader) (netip.Addr, error) {
	scanner := bufio.NewScanner(r)

	// 跳过标题
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return netip.Addr{}, err
		}
		return netip.Addr{}, ErrNoDefaultRoute
	}

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}

		dst, err := strconv.ParseUint(fields[1], 16, 32)
		if err != nil {
			continue
		}
		gw, err := strconv.ParseUint(fields[2], 16, 32)
		if err != nil {
			continue
		}

		if dst == 0 && gw != 0 {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(gw))
			return netip.AddrFrom4(b), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return netip.Addr{}, err
	}

	return netip.Addr{}, ErrNoDefaultRoute
}
