// Package mq 组播传输层
//
// 每个端点持有一对通道：绑定到本机监听者名称的接收通道，
// 以及面向组播组格式名称的发送通道。传输层只负责字节流的投递，
// 不关心消息内容。
package mq

import (
	"context"
	"net/netip"
)

const (
	// localPrefix 接收通道本机命名空间前缀
	localPrefix = "groupbus/local/"

	// groupPrefix 组播组格式名称前缀
	groupPrefix = "groupbus/multicast/"
)

// Inbound 接收通道
type Inbound interface {
	// Subscribe 注册消息处理函数并启动接收循环
	//
	// 成功返回时通道即处于监听状态。handler在传输层自己的goroutine中
	// 被调用，不允许长时间阻塞，否则会拖慢后续消息的接收
	Subscribe(ctx context.Context, handler func(payload []byte)) error

	// Close 停止接收并释放通道
	Close()
}

// Outbound 发送通道
type Outbound interface {
	// Publish 把消息投递给组内所有成员，不等待任何接收方确认
	Publish(ctx context.Context, payload []byte) error

	// Close 释放通道
	Close()
}

// Transport 传输层，负责打开通道对
type Transport interface {
	// OpenInbound 打开接收通道
	//
	// 同一台主机上，相同listener名下的通道只会被创建一次，
	// 后续打开的是同一个绑定
	OpenInbound(group netip.AddrPort, listener string) (Inbound, error)

	// OpenOutbound 打开发送通道，按地址寻址，不检查是否已存在
	OpenOutbound(group netip.AddrPort) (Outbound, error)
}

// LocalName 接收通道在本机命名空间内的名称
func LocalName(listener string) string {
	return localPrefix + listener
}

// GroupName 组播组的格式名称，用于寻址发送目标
func GroupName(group netip.AddrPort) string {
	return groupPrefix + group.String()
}
