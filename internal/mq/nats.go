package mq

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/nats-io/nats.go"
)

// natsTransport 基于nats的传输层，组播组地址映射为subject名称
type natsTransport struct {
	conn *nats.Conn
}

// NewNatsTransport 构造函数
func NewNatsTransport(conn *nats.Conn) Transport {
	return &natsTransport{conn: conn}
}

func (t *natsTransport) OpenInbound(group netip.AddrPort, listener string) (Inbound, error) {
	return &natsInbound{
		conn:    t.conn,
		subject: GroupName(group),
		done:    make(chan struct{}),
	}, nil
}

func (t *natsTransport) OpenOutbound(group netip.AddrPort) (Outbound, error) {
	return &natsOutbound{
		conn:    t.conn,
		subject: GroupName(group),
	}, nil
}

type natsInbound struct {
	conn    *nats.Conn
	subject string
	done    chan struct{}

	closeOnce sync.Once
}

func (in *natsInbound) Subscribe(ctx context.Context, handler func(payload []byte)) error {
	sub, err := in.conn.Subscribe(in.subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe subject, %w", err)
	}

	go func() {
		select {
		case <-in.done:
		case <-ctx.Done():
		}

		_ = sub.Unsubscribe()
	}()

	return nil
}

func (in *natsInbound) Close() {
	in.closeOnce.Do(func() {
		close(in.done)
	})
}

type natsOutbound struct {
	conn    *nats.Conn
	subject string
}

func (o *natsOutbound) Publish(ctx context.Context, payload []byte) error {
	if err := o.conn.Publish(o.subject, payload); err != nil {
		return fmt.Errorf("publish to nats, %w", err)
	}
	return nil
}

func (o *natsOutbound) Close() {}
