package groupbus

import (
	"context"
	"errors"
	"net/netip"
	"reflect"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joyparty/gokit"
	"github.com/joyparty/groupbus/internal/mq"
)

type testMessage struct {
	ID   int    `json:"id"`
	Text string `json:"text,omitempty"`
}

func newTestEndpoint(t *testing.T, listener string, opt ...Option[testMessage]) *Endpoint[testMessage] {
	t.Helper()

	e, err := New[testMessage]("224.1.2.3", 8001, listener, opt...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = e.Close()
	})
	return e
}

func TestSendReceive(t *testing.T) {
	transport := NewMemoryTransport()

	a := newTestEndpoint(t, "test-a", WithTransport[testMessage](transport))
	b := newTestEndpoint(t, "test-b", WithTransport[testMessage](transport))

	received := make(chan testMessage, 1)
	sub := b.Subscribe(func(msg testMessage, _ time.Time) {
		received <- msg
	})

	want := testMessage{ID: 1}
	gokit.Must(a.Send(context.Background(), want))

	select {
	case got := <-received:
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("not equal, want = %+v, actual = %+v", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receive timeout")
	}

	// 取消订阅之后不再收到任何消息
	b.Unsubscribe(sub)
	gokit.Must(a.Send(context.Background(), testMessage{ID: 2}))

	select {
	case got := <-received:
		t.Fatalf("unexpected message after unsubscribe: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInvalidAddress(t *testing.T) {
	if _, err := New[testMessage]("192.168.1.5", 8001, "test"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("want ErrInvalidAddress, actual %v", err)
	}

	if _, err := New[testMessage]("224.1.2.3", 8001, ""); err == nil {
		t.Fatal("want error for empty listener identity")
	}
}

func TestCloseIdempotent(t *testing.T) {
	e := newTestEndpoint(t, "test-close", WithTransport[testMessage](NewMemoryTransport()))

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	if err := e.Send(context.Background(), testMessage{ID: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, actual %v", err)
	}
}

type fakeInbound struct {
	closed atomic.Bool
}

func (f *fakeInbound) Subscribe(ctx context.Context, handler func(payload []byte)) error {
	return nil
}

func (f *fakeInbound) Close() {
	f.closed.Store(true)
}

// rollbackTransport 接收通道打开成功，发送通道打开失败
type rollbackTransport struct {
	inbound *fakeInbound
}

func (rt *rollbackTransport) OpenInbound(group netip.AddrPort, listener string) (mq.Inbound, error) {
	return rt.inbound, nil
}

func (rt *rollbackTransport) OpenOutbound(group netip.AddrPort) (mq.Outbound, error) {
	return nil, errors.New("transport unavailable")
}

func TestConstructRollback(t *testing.T) {
	transport := &rollbackTransport{inbound: &fakeInbound{}}

	_, err := New[testMessage]("224.1.2.3", 8001, "test-rollback",
		WithTransport[testMessage](transport),
	)
	if err == nil {
		t.Fatal("want error when outbound open fails")
	}

	if !transport.inbound.closed.Load() {
		t.Fatal("inbound channel leaked after outbound open failure")
	}
}

func TestObserverIsolation(t *testing.T) {
	e := newTestEndpoint(t, "test-isolation", WithTransport[testMessage](NewMemoryTransport()))

	// 第一个观察者每条消息都panic，不能影响第二个观察者的投递
	e.Subscribe(func(msg testMessage, _ time.Time) {
		panic("broken observer")
	})

	received := make(chan testMessage, 2)
	e.Subscribe(func(msg testMessage, _ time.Time) {
		received <- msg
	})

	gokit.Must(e.Send(context.Background(), testMessage{ID: 1}))
	gokit.Must(e.Send(context.Background(), testMessage{ID: 2}))

	// 不同消息之间不保证派发顺序
	got := []int{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-received:
			got = append(got, msg.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("receive timeout, got = %v", got)
		}
	}

	sort.Ints(got)
	if !reflect.DeepEqual([]int{1, 2}, got) {
		t.Fatalf("want [1 2], actual %v", got)
	}
}

func TestDecodeError(t *testing.T) {
	transport := NewMemoryTransport()

	errs := make(chan error, 1)
	e := newTestEndpoint(t, "test-decode",
		WithTransport[testMessage](transport),
		WithErrorHandler[testMessage](func(err error) {
			errs <- err
		}),
	)

	received := make(chan testMessage, 1)
	e.Subscribe(func(msg testMessage, _ time.Time) {
		received <- msg
	})

	// 绕过编码器，直接向组内投递无法解码的数据
	out := gokit.MustReturn(transport.OpenOutbound(e.Group().AddrPort()))
	defer out.Close()
	gokit.Must(out.Publish(context.Background(), []byte("garbage")))

	select {
	case err := <-errs:
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("want DecodeError, actual %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler not invoked")
	}

	// 解码失败只影响单条消息，后续消息照常接收
	want := testMessage{ID: 2}
	gokit.Must(e.Send(context.Background(), want))

	select {
	case got := <-received:
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("not equal, want = %+v, actual = %+v", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receive timeout after decode error")
	}
}

func TestReceiveLiveness(t *testing.T) {
	const n = 10

	e := newTestEndpoint(t, "test-liveness", WithTransport[testMessage](NewMemoryTransport()))

	received := make(chan testMessage, n+1)
	e.Subscribe(func(msg testMessage, _ time.Time) {
		received <- msg
	})

	for i := 0; i < n; i++ {
		gokit.Must(e.Send(context.Background(), testMessage{ID: i}))
	}
	for i := 0; i < n; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("receive timeout")
		}
	}

	// 接收循环处理完N条消息之后依然存活
	want := testMessage{ID: n}
	gokit.Must(e.Send(context.Background(), want))

	select {
	case got := <-received:
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("not equal, want = %+v, actual = %+v", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop stalled")
	}
}

// TestMulticastUDP 真实UDP组播收发，依赖运行环境的网络配置
func TestMulticastUDP(t *testing.T) {
	a, err := New[testMessage]("224.1.2.3", 8001, "udp-test-a")
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer a.Close()

	b, err := New[testMessage]("224.1.2.3", 8001, "udp-test-b")
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	defer b.Close()

	received := make(chan testMessage, 1)
	b.Subscribe(func(msg testMessage, _ time.Time) {
		received <- msg
	})

	want := testMessage{ID: 1}
	if err := a.Send(context.Background(), want); err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}

	select {
	case got := <-received:
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("not equal, want = %+v, actual = %+v", want, got)
		}
	case <-time.After(3 * time.Second):
		t.Skip("multicast loopback not available")
	}
}
