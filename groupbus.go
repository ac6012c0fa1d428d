// Package groupbus 基于组播传输的类型化发布订阅端点
//
// 端点加入一个组播组之后，可以向组内所有成员广播类型化消息，
// 同时持续异步接收其他成员广播的消息，并把每条消息派发给
// 已注册的观察者。
//
// 组播路由、成员管理、重传等可靠性机制都不在这里实现，
// 全部委托给底层传输。
package groupbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joyparty/gokit"
	"github.com/joyparty/groupbus/internal/metrics"
	"github.com/joyparty/groupbus/internal/mq"
	"github.com/joyparty/groupbus/logger"
	"github.com/oklog/ulid/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	stateOpen int32 = iota
	stateClosed
)

// Observer 消息观察者，sentAt为发送方打包消息的时间
type Observer[T any] func(msg T, sentAt time.Time)

// Subscription 订阅句柄，用于取消订阅
type Subscription string

// Endpoint 组播组内的通讯端点
//
// 每一次投递（一个观察者收到一条消息）都是独立的异步任务，
// 先后到达的两条消息可能以任意顺序送达同一个观察者，
// 需要严格顺序的调用方应当自行串行化
type Endpoint[T any] struct {
	group    GroupAddr
	listener string
	opts     *Options[T]

	inbound  mq.Inbound
	outbound mq.Outbound

	observers *gokit.MapOf[Subscription, Observer[T]]

	state     atomic.Int32
	closeOnce sync.Once
}

// New 构造函数
//
// 校验组播组地址，打开接收通道并立即开始监听，再打开发送通道。
// 任何一步失败都会释放已打开的通道，不会留下半初始化的端点。
//
// 同一台主机上使用相同listener的端点会附着到同一个接收绑定，
// 调用方需要谨慎选择listener名称，避免无意间的共享
func New[T any](ip string, port int, listener string, opt ...Option[T]) (*Endpoint[T], error) {
	group, err := ParseGroupAddr(ip, port)
	if err != nil {
		return nil, err
	}

	if listener == "" {
		return nil, errors.New("listener identity is empty")
	}

	opts := newOptions[T]()
	for _, fn := range opt {
		fn(opts)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	e := &Endpoint[T]{
		group:     group,
		listener:  listener,
		opts:      opts,
		observers: gokit.NewMapOf[Subscription, Observer[T]](),
	}

	inbound, err := opts.Transport.OpenInbound(group.AddrPort(), listener)
	if err != nil {
		return nil, fmt.Errorf("open inbound channel, %w", err)
	}

	if err := inbound.Subscribe(context.Background(), e.handlePayload); err != nil {
		inbound.Close()
		return nil, fmt.Errorf("open inbound channel, %w", err)
	}
	e.inbound = inbound

	outbound, err := opts.Transport.OpenOutbound(group.AddrPort())
	if err != nil {
		// 回滚，不能泄漏已打开的接收通道
		inbound.Close()
		return nil, fmt.Errorf("open outbound channel, %w", err)
	}
	e.outbound = outbound

	return e, nil
}

// Group 端点所在的组播组地址
func (e *Endpoint[T]) Group() GroupAddr {
	return e.group
}

// LocalName 接收通道在本机命名空间内的名称
func (e *Endpoint[T]) LocalName() string {
	return mq.LocalName(e.listener)
}

// Send 把消息广播给组内所有成员
//
// 发送是同步的，但组播是fire-and-forget，不等待任何接收方确认。
// 同一个调用方的多次Send按调用顺序上线
func (e *Endpoint[T]) Send(ctx context.Context, msg T) error {
	if e.state.Load() == stateClosed {
		return ErrClosed
	}

	payload, err := e.opts.Codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode message, %w", err)
	}

	if err := e.outbound.Publish(ctx, payload); err != nil {
		return fmt.Errorf("publish message, %w", err)
	}

	metrics.IncrPublish(e.group.String(), len(payload))
	return nil
}

// Subscribe 注册观察者
//
// 可以在端点生命周期内任意时刻调用，包括派发正在进行的时候
func (e *Endpoint[T]) Subscribe(fn Observer[T]) Subscription {
	sub := Subscription(ulid.Make().String())
	e.observers.Store(sub, fn)
	return sub
}

// Unsubscribe 取消订阅
func (e *Endpoint[T]) Unsubscribe(sub Subscription) {
	e.observers.Delete(sub)
}

// Close 关闭端点，释放两个通道，幂等
//
// 已经提交的派发任务是fire-and-forget，不保证执行完成
func (e *Endpoint[T]) Close() error {
	e.closeOnce.Do(func() {
		e.state.Store(stateClosed)
		e.inbound.Close()
		e.outbound.Close()
	})
	return nil
}

// handlePayload 接收完成后的处理
//
// 解码之后每个观察者一次独立投递，慢观察者不会拖住传输层的再次接收。
// 解码失败只影响这一条消息，循环继续
func (e *Endpoint[T]) handlePayload(payload []byte) {
	if e.state.Load() == stateClosed {
		// 关闭之后丢弃在途消息
		return
	}

	msg, sentAt, err := e.opts.Codec.Decode(payload)
	if err != nil {
		metrics.IncrDecodeError(e.group.String())
		e.reportError(&DecodeError{Payload: payload, Err: err})
		return
	}
	metrics.IncrConsume(e.group.String(), sentAt)

	e.observers.Range(func(_ Subscription, fn Observer[T]) bool {
		e.submitTask(func() {
			e.deliver(fn, msg, sentAt)
		})
		return true
	})
}

// deliver 单次投递，观察者panic不会影响其他观察者和接收循环
func (e *Endpoint[T]) deliver(fn Observer[T], msg T, sentAt time.Time) {
	defer func() {
		if v := recover(); v != nil {
			logger.Error("observer panic", "error", v, "group", e.group.String())
		}
	}()

	fn(msg, sentAt)
}

func (e *Endpoint[T]) submitTask(task func()) {
	var err error
	if pool := e.opts.GoPool; pool != nil {
		err = pool.Submit(task)
	} else {
		err = ants.Submit(task)
	}

	if err != nil {
		logger.Error("submit dispatch task", "error", err, "group", e.group.String())
	}
}

func (e *Endpoint[T]) reportError(err error) {
	if fn := e.opts.ErrorHandler; fn != nil {
		fn(err)
		return
	}

	logger.Error("receive message", "error", err, "group", e.group.String())
}

// EnableMetrics 开启运行指标统计，返回prometheus registry
func EnableMetrics() *prometheus.Registry {
	return metrics.Init()
}
