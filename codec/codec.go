// Package codec 消息编解码
//
// 消息在线路上以信封格式传输：
//
//	xxhash64校验和(8字节) | 发送时间微秒(8字节) | 消息体
//
// 所有整数均为大端字节序。编解码必须对称，任何发送方编码的结果
// 都可以被持有相同消息类型的接收方解码。
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/joyparty/gokit"
)

// headerLen 信封头部长度
const headerLen = 16

var (
	// MaxMessageSize 消息最大长度，默认64KB，即单个UDP数据报的上限
	MaxMessageSize = 64 * 1024

	// ErrTooLarge 消息长度超过MaxMessageSize
	ErrTooLarge = errors.New("message too large")

	// ErrChecksum 校验和不匹配，消息已损坏
	ErrChecksum = errors.New("checksum mismatch")

	bufPool = gokit.NewPoolOf(func() *bytes.Buffer {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	})
)

// Codec 消息编解码器
type Codec[T any] interface {
	// Encode 把消息编码为信封格式的二进制数据
	Encode(msg T) ([]byte, error)

	// Decode 解码信封数据，返回消息及其发送时间
	Decode(data []byte) (T, time.Time, error)
}

// Seal 把消息体打包为信封数据
func Seal(body []byte, sentAt time.Time) ([]byte, error) {
	if headerLen+len(body) > MaxMessageSize {
		return nil, fmt.Errorf("%w, size = %d", ErrTooLarge, len(body))
	}

	data := make([]byte, headerLen+len(body))
	binary.BigEndian.PutUint64(data[8:headerLen], uint64(sentAt.UnixMicro()))
	copy(data[headerLen:], body)
	binary.BigEndian.PutUint64(data[:8], xxhash.Sum64(data[8:]))
	return data, nil
}

// Unseal 拆开信封，返回消息体及发送时间
func Unseal(data []byte) ([]byte, time.Time, error) {
	if len(data) < headerLen {
		return nil, time.Time{}, fmt.Errorf("invalid envelope, size = %d", len(data))
	} else if len(data) > MaxMessageSize {
		return nil, time.Time{}, fmt.Errorf("%w, size = %d", ErrTooLarge, len(data))
	}

	if sum := binary.BigEndian.Uint64(data[:8]); sum != xxhash.Sum64(data[8:]) {
		return nil, time.Time{}, ErrChecksum
	}

	sentAt := time.UnixMicro(int64(binary.BigEndian.Uint64(data[8:headerLen])))
	return data[headerLen:], sentAt, nil
}

// JSON 默认编解码器，消息体为JSON
type JSON[T any] struct{}

// NewJSON 构造函数
func NewJSON[T any]() JSON[T] {
	return JSON[T]{}
}

// Encode 编码消息
func (JSON[T]) Encode(msg T) ([]byte, error) {
	buf := bufPool.Get()
	defer bufPool.Put(buf)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("marshal message, %w", err)
	}
	return Seal(buf.Bytes(), time.Now())
}

// Decode 解码消息
func (JSON[T]) Decode(data []byte) (msg T, sentAt time.Time, err error) {
	body, sentAt, err := Unseal(data)
	if err != nil {
		return msg, sentAt, err
	}

	if err := json.Unmarshal(body, &msg); err != nil {
		var zero T
		return zero, sentAt, fmt.Errorf("unmarshal message, %w", err)
	}
	return msg, sentAt, nil
}
