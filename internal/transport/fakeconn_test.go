package transport

import (
	"context"
	"net"
	"os"
	"sync"
	"time"
)

// step 一次 ReadFrom 的脚本
type step struct {
	from net.Addr
	data []byte
	err  error

	// before 在返回前执行，可用于模拟取消
	before func()
}

// fakeConn 按脚本返回数据报的 net.PacketConn
type fakeConn struct {
	mu sync.Mutex

	steps    []step
	writeErr error

	writes    [][]byte
	dsts      []net.Addr
	deadlines []time.Time
	// readBufs 每次 ReadFrom 时缓冲区的快照
	readBufs [][]byte
	closed   bool
}

func newFakeConn(steps ...step) *fakeConn {
	return &fakeConn{steps: steps}
}

func (c *fakeConn) listen(context.Context) (net.PacketConn, error) {
	return c, nil
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	c.mu.Lock()
	c.readBufs = append(c.readBufs, append([]byte(nil), b...))
	if len(c.steps) == 0 {
		c.mu.Unlock()
		return 0, nil, os.ErrDeadlineExceeded
	}
	s := c.steps[0]
	c.steps = c.steps[1:]
	c.mu.Unlock()

	if s.before != nil {
		s.before()
	}
	if s.err != nil {
		return 0, nil, s.err
	}
	n := copy(b, s.data)
	return n, s.from, nil
}

func (c *fakeConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), b...))
	c.dsts = append(c.dsts, addr)
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4zero, Port: 40000}
}

func (c *fakeConn) SetDeadline(t time.Time) error {
	return c.SetReadDeadline(t)
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, t)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error {
	return nil
}

// timeoutErr 只实现 net.Error 的超时错误
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
