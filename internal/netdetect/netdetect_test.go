package netdetect

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestInterfaces_PicksPrivateIPv4(t *testing.T) {
	d := Interfaces{
		List: func() ([]net.Interface, error) {
			return []net.Interface{
				{Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
				{Name: "wlan0", Flags: net.FlagUp},
			}, nil
		},
		Addrs: func(i net.Interface) ([]net.Addr, error) {
			if i.Name == "lo" {
				return []net.Addr{&net.IPNet{IP: net.ParseIP("127.0.0.1")}}, nil
			}
			return []net.Addr{
				&net.IPNet{IP: net.ParseIP("fe80::1")},
				&net.IPNet{IP: net.ParseIP("8.8.8.8")},
				&net.IPNet{IP: net.ParseIP("192.168.1.101")},
			}, nil
		},
	}
	ip, err := d.DetectLANIP(context.Background())
	if err != nil {
		t.Fatalf("DetectLANIP: %v", err)
	}
	if ip != "192.168.1.101" {
		t.Fatalf("want 192.168.1.101, got %q", ip)
	}
}

func TestInterfaces_NoneFound(t *testing.T) {
	d := Interfaces{
		List: func() ([]net.Interface, error) { return nil, nil },
	}
	if _, err := d.DetectLANIP(context.Background()); !errors.Is(err, ErrNoLANAddress) {
		t.Fatalf("want ErrNoLANAddress, got %v", err)
	}
}

func TestInterfaces_RespectsContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	d := Interfaces{
		List: func() ([]net.Interface, error) {
			<-block
			return nil, nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.DetectLANIP(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestStatic(t *testing.T) {
	if ip, err := Static("10.0.0.5").DetectLANIP(context.Background()); err != nil || ip != "10.0.0.5" {
		t.Fatalf("unexpected %q %v", ip, err)
	}
	if _, err := Static("").DetectLANIP(context.Background()); err == nil {
		t.Fatalf("want error for empty static")
	}
}
