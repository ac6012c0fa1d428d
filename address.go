package groupbus

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrInvalidAddress 非法的组播组地址
var ErrInvalidAddress = errors.New("invalid multicast address")

// GroupAddr 校验过的组播组地址
//
// 只能通过ParseGroupAddr构造，构造之后不可变
type GroupAddr struct {
	addrPort netip.AddrPort
}

// ParseGroupAddr 解析并校验组播组地址
//
// 只接受点分十进制的IPv4地址，且首字节必须落在[224,239]组播地址段内
func ParseGroupAddr(ip string, port int) (GroupAddr, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return GroupAddr{}, fmt.Errorf("%w, malformed ip %q", ErrInvalidAddress, ip)
	}

	if first := addr.As4()[0]; first < 224 || first > 239 {
		return GroupAddr{}, fmt.Errorf("%w, ip %q out of multicast range", ErrInvalidAddress, ip)
	}

	if port <= 0 || port > 65535 {
		return GroupAddr{}, fmt.Errorf("%w, port %d out of range", ErrInvalidAddress, port)
	}

	return GroupAddr{
		addrPort: netip.AddrPortFrom(addr, uint16(port)),
	}, nil
}

// AddrPort 地址端口对
func (ga GroupAddr) AddrPort() netip.AddrPort {
	return ga.addrPort
}

func (ga GroupAddr) String() string {
	return ga.addrPort.String()
}
