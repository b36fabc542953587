// Package netdetect finds the LAN address a phone on the same network would
// use to reach a dev server running on this machine.
package netdetect

import (
	"context"
	"errors"
	"net"
)

var ErrNoLANAddress = errors.New("no private ipv4 address found")

type Detector interface {
	DetectLANIP(ctx context.Context) (string, error)
}

// Interfaces inspects the local network interfaces.
type Interfaces struct {
	// List defaults to net.Interfaces; replaced in tests.
	List func() ([]net.Interface, error)
	// Addrs defaults to (*net.Interface).Addrs.
	Addrs func(net.Interface) ([]net.Addr, error)
}

func (d Interfaces) DetectLANIP(ctx context.Context) (string, error) {
	type res struct {
		ip  string
		err error
	}
	ch := make(chan res, 1)
	go func() {
		ip, err := d.scan()
		ch <- res{ip, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.ip, r.err
	}
}

func (d Interfaces) scan() (string, error) {
	list := d.List
	if list == nil {
		list = net.Interfaces
	}
	addrs := d.Addrs
	if addrs == nil {
		addrs = func(i net.Interface) ([]net.Addr, error) { return i.Addrs() }
	}

	ifaces, err := list()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		as, err := addrs(iface)
		if err != nil {
			continue
		}
		for _, a := range as {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip4 := ip.To4(); ip4 != nil && ip4.IsPrivate() {
				return ip4.String(), nil
			}
		}
	}
	return "", ErrNoLANAddress
}

// Static always reports the same address; empty means "not detected".
type Static string

func (s Static) DetectLANIP(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoLANAddress
	}
	return string(s), nil
}
