package mq

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/joyparty/groupbus/logger"
	"github.com/reactivex/rxgo/v2"
	"github.com/redis/go-redis/v9"
)

// RedisClient 实现了PubSub方法的redis客户端接口
//
// *redis.Client 和 *redis.ClusterClient 均可使用
type RedisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// redisTransport 基于redis pub/sub的传输层
//
// 组播组地址映射为redis channel名称。redis的订阅本身就是广播，
// 每个订阅连接都会收到全量消息，listener身份不参与寻址
type redisTransport struct {
	client RedisClient
}

// NewRedisTransport 构造函数
func NewRedisTransport(client RedisClient) Transport {
	return &redisTransport{client: client}
}

func (t *redisTransport) OpenInbound(group netip.AddrPort, listener string) (Inbound, error) {
	return &redisInbound{
		client:  t.client,
		channel: GroupName(group),
		done:    make(chan struct{}),
	}, nil
}

func (t *redisTransport) OpenOutbound(group netip.AddrPort) (Outbound, error) {
	return &redisOutbound{
		client:  t.client,
		channel: GroupName(group),
	}, nil
}

type redisInbound struct {
	client  RedisClient
	channel string
	done    chan struct{}

	observer      rxgo.Observable
	subscribeOnce sync.Once
	closeOnce     sync.Once
}

func (in *redisInbound) Subscribe(ctx context.Context, handler func(payload []byte)) error {
	in.subscribe(ctx)

	in.observer.ForEach(
		func(item any) {
			handler(item.([]byte))
		},
		func(err error) {
			logger.FromContext(ctx).Error("redis observer error", "error", err, "channel", in.channel)
		},
		func() {},
	)
	return nil
}

func (in *redisInbound) subscribe(ctx context.Context) {
	in.subscribeOnce.Do(func() {
		pubsub := in.client.Subscribe(ctx, in.channel)
		items := make(chan rxgo.Item)
		in.observer = rxgo.FromEventSource(items, rxgo.WithErrorStrategy(rxgo.ContinueOnError))

		mc := pubsub.Channel()
		go func() {
			defer func() {
				_ = pubsub.Unsubscribe(context.Background(), in.channel)
				_ = pubsub.Close()

				close(items)
			}()

			for {
				select {
				case <-in.done:
					return
				case msg, ok := <-mc:
					if !ok {
						logger.Error("redis consumer unexpected closed", "channel", in.channel)
						return
					}

					select {
					case <-in.done:
						return
					case items <- rxgo.Of([]byte(msg.Payload)):
					}
				}
			}
		}()
	})
}

func (in *redisInbound) Close() {
	in.closeOnce.Do(func() {
		close(in.done)
	})
}

type redisOutbound struct {
	client  RedisClient
	channel string
}

func (o *redisOutbound) Publish(ctx context.Context, payload []byte) error {
	if err := o.client.Publish(ctx, o.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to redis, %w", err)
	}
	return nil
}

func (o *redisOutbound) Close() {}
