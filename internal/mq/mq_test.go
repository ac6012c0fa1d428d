package mq

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/joyparty/gokit"
)

func TestNames(t *testing.T) {
	if name := LocalName("test-a"); name != "groupbus/local/test-a" {
		t.Fatalf("unexpected local name %q", name)
	}

	group := netip.MustParseAddrPort("224.1.2.3:8001")
	if name := GroupName(group); name != "groupbus/multicast/224.1.2.3:8001" {
		t.Fatalf("unexpected group name %q", name)
	}
}

func TestMemoryFanout(t *testing.T) {
	tr := NewMemoryTransport()
	group := netip.MustParseAddrPort("224.1.2.3:8001")

	ctx := context.Background()
	c1 := make(chan []byte, 1)
	c2 := make(chan []byte, 1)

	in1 := gokit.MustReturn(tr.OpenInbound(group, "a"))
	defer in1.Close()
	gokit.Must(in1.Subscribe(ctx, func(payload []byte) { c1 <- payload }))

	in2 := gokit.MustReturn(tr.OpenInbound(group, "b"))
	defer in2.Close()
	gokit.Must(in2.Subscribe(ctx, func(payload []byte) { c2 <- payload }))

	out := gokit.MustReturn(tr.OpenOutbound(group))
	defer out.Close()
	gokit.Must(out.Publish(ctx, []byte("hello")))

	for _, c := range []chan []byte{c1, c2} {
		select {
		case payload := <-c:
			if string(payload) != "hello" {
				t.Fatalf("unexpected payload %q", payload)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("receive timeout")
		}
	}
}

func TestUDPInboundReuse(t *testing.T) {
	tr := NewUDPTransport()
	group := netip.MustParseAddrPort("224.9.9.9:8009")

	in1, err := tr.OpenInbound(group, "reuse-test")
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}

	in2 := gokit.MustReturn(tr.OpenInbound(group, "reuse-test"))

	if in1.(*udpAttachment).inbound != in2.(*udpAttachment).inbound {
		t.Fatal("same listener identity must attach to the same inbound binding")
	}

	in1.Close()

	// 还有附着存在，socket不能被释放
	inboundsMu.Lock()
	_, ok := inbounds[LocalName("reuse-test")]
	inboundsMu.Unlock()
	if !ok {
		t.Fatal("inbound released while still attached")
	}

	in2.Close()

	inboundsMu.Lock()
	_, ok = inbounds[LocalName("reuse-test")]
	inboundsMu.Unlock()
	if ok {
		t.Fatal("inbound not released after last close")
	}
}
