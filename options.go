package groupbus

import (
	"errors"

	"github.com/joyparty/groupbus/codec"
	"github.com/joyparty/groupbus/internal/mq"
	"github.com/nats-io/nats.go"
)

type (
	// Transport 底层传输
	Transport = mq.Transport

	// RedisClient redis客户端接口
	RedisClient = mq.RedisClient
)

// NewUDPTransport 基于UDP组播的传输，构造端点时的默认值
func NewUDPTransport() Transport {
	return mq.NewUDPTransport()
}

// NewRedisTransport 基于redis pub/sub的传输
//
// client 可以使用 *redis.Client 或者 *redis.ClusterClient
func NewRedisTransport(client RedisClient) Transport {
	return mq.NewRedisTransport(client)
}

// NewNatsTransport 基于nats的传输
func NewNatsTransport(conn *nats.Conn) Transport {
	return mq.NewNatsTransport(conn)
}

// NewMemoryTransport 进程内传输，同一个实例构造的端点之间互相可达
func NewMemoryTransport() Transport {
	return mq.NewMemoryTransport()
}

// GoPool goroutine pool
type GoPool interface {
	Submit(task func()) error
}

// Options 端点配置
type Options[T any] struct {
	// Codec 消息编解码器，默认为JSON信封编码
	Codec codec.Codec[T]

	// Transport 底层传输，默认为UDP组播
	Transport Transport

	// GoPool goroutine池，用于把消息派发给观察者
	// 不设置则使用ants默认池
	GoPool GoPool

	// ErrorHandler 接收侧错误处理
	//
	// 解码失败等接收侧错误只影响单条消息，通过这里通知调用方，
	// 默认仅记录日志
	ErrorHandler func(err error)
}

func newOptions[T any]() *Options[T] {
	return &Options[T]{
		Codec:     codec.NewJSON[T](),
		Transport: mq.NewUDPTransport(),
	}
}

// Validate 有效性检查
func (opt *Options[T]) Validate() error {
	if opt.Codec == nil {
		return errors.New("codec is nil")
	} else if opt.Transport == nil {
		return errors.New("transport is nil")
	}

	return nil
}

// Option 端点配置选项
type Option[T any] func(opt *Options[T])

// WithCodec 设置消息编解码器
func WithCodec[T any](c codec.Codec[T]) Option[T] {
	return func(opt *Options[T]) {
		opt.Codec = c
	}
}

// WithTransport 设置底层传输
func WithTransport[T any](t Transport) Option[T] {
	return func(opt *Options[T]) {
		opt.Transport = t
	}
}

// WithGoPool 设置goroutine pool
func WithGoPool[T any](pool GoPool) Option[T] {
	return func(opt *Options[T]) {
		opt.GoPool = pool
	}
}

// WithErrorHandler 设置接收侧错误处理函数
func WithErrorHandler[T any](fn func(err error)) Option[T] {
	return func(opt *Options[T]) {
		opt.ErrorHandler = fn
	}
}
