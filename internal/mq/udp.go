package mq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/joyparty/gokit"
	"github.com/joyparty/groupbus/logger"
	"github.com/samber/lo"
	"golang.org/x/net/ipv4"
)

// maxDatagramSize 单个UDP数据报最大长度
const maxDatagramSize = 64 * 1024

// 本机命名空间内的接收通道注册表
// 同名的接收通道在进程内只会创建一次，后续打开的是同一个绑定
var (
	inboundsMu sync.Mutex
	inbounds   = map[string]*udpInbound{}
)

type udpTransport struct{}

// NewUDPTransport 基于UDP组播的传输层
func NewUDPTransport() Transport {
	return udpTransport{}
}

func (udpTransport) OpenInbound(group netip.AddrPort, listener string) (Inbound, error) {
	name := LocalName(listener)

	inboundsMu.Lock()
	defer inboundsMu.Unlock()

	in, ok := inbounds[name]
	if ok {
		// 重新打开已存在的通道时不重新绑定，沿用原有的组播绑定
		if in.group != group {
			logger.Warn("reuse inbound channel with different group binding",
				"name", name,
				"bound", in.group.String(),
				"requested", group.String(),
			)
		}
	} else {
		conn, err := listenGroup(group)
		if err != nil {
			return nil, fmt.Errorf("listen multicast group, %w", err)
		}

		in = &udpInbound{
			name:     name,
			group:    group,
			conn:     conn,
			handlers: gokit.NewMapOf[uint64, func([]byte)](),
			done:     make(chan struct{}),
		}
		inbounds[name] = in
	}

	in.refs++
	return &udpAttachment{inbound: in}, nil
}

func (udpTransport) OpenOutbound(group netip.AddrPort) (Outbound, error) {
	conn, err := net.DialUDP("udp4", nil, net.UDPAddrFromAddrPort(group))
	if err != nil {
		return nil, fmt.Errorf("dial multicast group, %w", err)
	}

	// 同一台主机上的成员也要能收到自己组内的消息
	_ = ipv4.NewPacketConn(conn).SetMulticastLoopback(true)

	return &udpOutbound{
		name: GroupName(group),
		conn: conn,
	}, nil
}

// listenGroup 创建接收socket并加入组播组
//
// 除系统默认接口外，还会加入所有支持组播的活动接口，
// 保证同一台主机上的成员能互相收到消息
func listenGroup(group netip.AddrPort) (*net.UDPConn, error) {
	gaddr := net.UDPAddrFromAddrPort(group)

	conn, err := net.ListenMulticastUDP("udp4", nil, gaddr)
	if err != nil {
		return nil, err
	}

	pconn := ipv4.NewPacketConn(conn)
	for _, ifi := range multicastInterfaces() {
		// 默认接口已经加入过，重复加入的报错直接忽略
		_ = pconn.JoinGroup(&ifi, &net.UDPAddr{IP: gaddr.IP})
	}
	_ = pconn.SetMulticastLoopback(true)
	_ = conn.SetReadBuffer(maxDatagramSize)

	return conn, nil
}

func multicastInterfaces() []net.Interface {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	return lo.Filter(ifaces, func(ifi net.Interface, _ int) bool {
		return ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0
	})
}

// udpInbound 绑定到本机名称的接收socket
//
// 进程内同名通道只有一个实例，多个端点以附着的方式共享，
// 最后一个附着关闭时才释放socket
type udpInbound struct {
	name  string
	group netip.AddrPort
	conn  *net.UDPConn

	handlers  *gokit.MapOf[uint64, func([]byte)]
	handlerID atomic.Uint64

	refs      int // guarded by inboundsMu
	startOnce sync.Once
	done      chan struct{}
}

func (in *udpInbound) attach(handler func(payload []byte)) uint64 {
	id := in.handlerID.Add(1)
	in.handlers.Store(id, handler)

	in.startOnce.Do(func() {
		go in.readLoop()
	})
	return id
}

// readLoop 接收循环
//
// 每读取一个数据报，把数据拷贝出来交给handler之后立即继续读取下一个，
// 消息的解码派发由上层作为异步任务执行，不会阻塞这里的再次接收
func (in *udpInbound) readLoop() {
	buf := make([]byte, maxDatagramSize)

	for {
		select {
		case <-in.done:
			return
		default:
		}

		n, _, err := in.conn.ReadFromUDP(buf)
		if errors.Is(err, net.ErrClosed) {
			return
		} else if err != nil {
			logger.Error("read datagram", "error", err, "name", in.name)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		in.handlers.Range(func(_ uint64, handler func([]byte)) bool {
			handler(payload)
			return true
		})
	}
}

// udpAttachment 端点视角的接收通道
//
// Close只解除自己的附着，socket由注册表按引用计数释放
type udpAttachment struct {
	inbound   *udpInbound
	handlerID uint64
	closeOnce sync.Once
}

func (a *udpAttachment) Subscribe(ctx context.Context, handler func(payload []byte)) error {
	a.handlerID = a.inbound.attach(handler)
	return nil
}

func (a *udpAttachment) Close() {
	a.closeOnce.Do(func() {
		a.inbound.handlers.Delete(a.handlerID)

		inboundsMu.Lock()
		defer inboundsMu.Unlock()

		a.inbound.refs--
		if a.inbound.refs == 0 {
			close(a.inbound.done)
			_ = a.inbound.conn.Close()
			delete(inbounds, a.inbound.name)
		}
	})
}

// udpOutbound 面向组播组的发送socket
//
// 发送按地址寻址，每次打开都新建socket，不检查组播组是否已有成员
type udpOutbound struct {
	name      string
	conn      *net.UDPConn
	closeOnce sync.Once
}

func (o *udpOutbound) Publish(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := o.conn.Write(payload); err != nil {
		return fmt.Errorf("write datagram, %w", err)
	}
	return nil
}

func (o *udpOutbound) Close() {
	o.closeOnce.Do(func() {
		_ = o.conn.Close()
	})
}
