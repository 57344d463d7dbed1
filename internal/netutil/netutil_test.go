package netutil

import (
	"net"
	"testing"
)

func ipNet(s string) net.Addr {
	ip, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	n.IP = ip
	return n
}

func TestRestrictive(t *testing.T) {
	up := net.FlagUp

	tests := []struct {
		name   string
		ifaces []Interface
		want   bool
	}{
		{"no interfaces", nil, false},
		{"plain ethernet", []Interface{{Name: "eth0", Flags: up, Addrs: []net.Addr{ipNet("192.168.1.10/24")}}}, false},
		{"wireguard", []Interface{{Name: "wg0", Flags: up}}, true},
		{"openvpn", []Interface{{Name: "tun0", Flags: up}}, true},
		{"warp uppercase", []Interface{{Name: "CloudflareWARP", Flags: up}}, true},
		{"cgnat address", []Interface{{Name: "eth0", Flags: up, Addrs: []net.Addr{ipNet("100.72.3.4/10")}}}, true},
		{"cgnat ipaddr", []Interface{{Name: "eth0", Flags: up, Addrs: []net.Addr{&net.IPAddr{IP: net.ParseIP("100.100.100.100")}}}}, true},
		{"just outside cgnat", []Interface{{Name: "eth0", Flags: up, Addrs: []net.Addr{ipNet("100.128.0.1/16")}}}, false},
		{"tunnel down", []Interface{{Name: "tun0"}}, false},
		{"loopback ignored", []Interface{{Name: "lo", Flags: up | net.FlagLoopback, Addrs: []net.Addr{ipNet("100.64.0.1/32")}}}, false},
		{"ipv6 only", []Interface{{Name: "eth0", Flags: up, Addrs: []net.Addr{ipNet("fe80::1/64")}}}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Restrictive(tc.ifaces); got != tc.want {
				t.Fatalf("Restrictive = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestShouldForceRelayDoesNotPanic(t *testing.T) {
	_ = ShouldForceRelay()
}
