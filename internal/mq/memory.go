package mq

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/joyparty/gokit"
)

// memoryTransport 进程内传输
//
// 同一个实例构造的端点之间互相可达，用于测试以及单进程内的本地总线
type memoryTransport struct {
	groups *gokit.MapOf[string, *memoryGroup]
}

// NewMemoryTransport 构造函数
func NewMemoryTransport() Transport {
	return &memoryTransport{
		groups: gokit.NewMapOf[string, *memoryGroup](),
	}
}

func (t *memoryTransport) OpenInbound(group netip.AddrPort, listener string) (Inbound, error) {
	return &memoryInbound{group: t.group(group)}, nil
}

func (t *memoryTransport) OpenOutbound(group netip.AddrPort) (Outbound, error) {
	return &memoryOutbound{group: t.group(group)}, nil
}

func (t *memoryTransport) group(group netip.AddrPort) *memoryGroup {
	g, _ := t.groups.LoadOrStore(GroupName(group), &memoryGroup{
		handlers: gokit.NewMapOf[uint64, func([]byte)](),
	})
	return g
}

type memoryGroup struct {
	handlers  *gokit.MapOf[uint64, func([]byte)]
	handlerID atomic.Uint64
}

type memoryInbound struct {
	group     *memoryGroup
	handlerID uint64
	closeOnce sync.Once
}

func (in *memoryInbound) Subscribe(ctx context.Context, handler func(payload []byte)) error {
	in.handlerID = in.group.handlerID.Add(1)
	in.group.handlers.Store(in.handlerID, handler)
	return nil
}

func (in *memoryInbound) Close() {
	in.closeOnce.Do(func() {
		in.group.handlers.Delete(in.handlerID)
	})
}

type memoryOutbound struct {
	group  *memoryGroup
	closed atomic.Bool
}

func (o *memoryOutbound) Publish(ctx context.Context, payload []byte) error {
	if o.closed.Load() {
		return net.ErrClosed
	} else if err := ctx.Err(); err != nil {
		return err
	}

	// 模拟传输层的异步投递，接收发生在传输层自己的goroutine上
	go o.group.handlers.Range(func(_ uint64, handler func([]byte)) bool {
		handler(payload)
		return true
	})

	return nil
}

func (o *memoryOutbound) Close() {
	o.closed.Store(true)
}
