package groupbus

import (
	"errors"
	"fmt"
)

// ErrClosed 端点已关闭
var ErrClosed = errors.New("endpoint is closed")

// DecodeError 消息解码失败
//
// 只影响单条消息，接收循环不会因此中断。
// 通过ErrorHandler暴露给调用方，不会抛到任意的调用线程上
type DecodeError struct {
	// Payload 无法解码的原始数据
	Payload []byte

	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message, %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
