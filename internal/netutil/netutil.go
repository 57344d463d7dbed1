// Package netutil detects networks on which direct peer-to-peer paths are
// unlikely to work.
package netutil

import (
	"net"
	"strings"
)

// cgnat is the shared address space (100.64.0.0/10) used by carrier-grade
// NAT and by overlay VPNs such as Cloudflare WARP and Tailscale.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0).To4(), Mask: net.CIDRMask(10, 32)}

// tunnelHints are substrings of interface names created by VPN software.
var tunnelHints = []string{"tun", "tap", "wg", "ppp", "warp"}

// Interface is the part of net.Interface the heuristics look at.
type Interface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// ShouldForceRelay reports whether this host looks like it sits behind a
// VPN or CGNAT, in which case relay-only transport is the safer policy.
func ShouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	list := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			addrs = nil
		}
		list = append(list, Interface{Name: iface.Name, Flags: iface.Flags, Addrs: addrs})
	}
	return Restrictive(list)
}

// Restrictive applies the relay heuristics to a list of interfaces. Down
// and loopback interfaces are ignored.
func Restrictive(ifaces []Interface) bool {
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, hint := range tunnelHints {
			if strings.Contains(name, hint) {
				return true
			}
		}

		for _, addr := range iface.Addrs {
			if ip := addrIP(addr); ip != nil && cgnat.Contains(ip) {
				return true
			}
		}
	}
	return false
}

func addrIP(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}
