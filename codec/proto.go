package codec

import (
	"fmt"
	"reflect"
	"time"

	"google.golang.org/protobuf/proto"
)

// Proto 基于protobuf的编解码器
//
// T必须是proto.Message的指针类型，例如 Proto[*pb.Chat]
type Proto[T proto.Message] struct {
	valueType reflect.Type
}

// NewProto 构造函数
func NewProto[T proto.Message]() Proto[T] {
	var msg T
	return Proto[T]{
		valueType: reflect.TypeOf(msg).Elem(),
	}
}

// Encode 编码消息
func (Proto[T]) Encode(msg T) ([]byte, error) {
	body, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message, %w", err)
	}
	return Seal(body, time.Now())
}

// Decode 解码消息
func (pc Proto[T]) Decode(data []byte) (T, time.Time, error) {
	var zero T

	body, sentAt, err := Unseal(data)
	if err != nil {
		return zero, sentAt, err
	}

	msg := reflect.New(pc.valueType).Interface().(T)
	if err := proto.Unmarshal(body, msg); err != nil {
		return zero, sentAt, fmt.Errorf("unmarshal message, %w", err)
	}
	return msg, sentAt, nil
}
