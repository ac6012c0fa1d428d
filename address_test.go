package groupbus

import (
	"errors"
	"testing"
)

func TestParseGroupAddr(t *testing.T) {
	valid := []string{
		"224.0.0.0",
		"224.1.2.3",
		"230.10.20.30",
		"239.255.255.255",
	}
	for _, ip := range valid {
		if _, err := ParseGroupAddr(ip, 8001); err != nil {
			t.Fatalf("parse %q, unexpected error: %v", ip, err)
		}
	}

	invalid := []string{
		"",
		"not-an-ip",
		"224.0.0",
		"224.0.0.0.1",
		"224.0.0.256",
		"10.0.0.1",
		"192.168.1.5",
		"223.255.255.255",
		"240.0.0.1",
		"255.255.255.255",
		"ff02::1",
	}
	for _, ip := range invalid {
		if _, err := ParseGroupAddr(ip, 8001); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("parse %q, want ErrInvalidAddress, actual %v", ip, err)
		}
	}

	for _, port := range []int{-1, 0, 65536} {
		if _, err := ParseGroupAddr("224.1.2.3", port); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("parse port %d, want ErrInvalidAddress, actual %v", port, err)
		}
	}
}
