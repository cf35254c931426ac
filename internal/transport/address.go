package transport

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
)

const (
	SchemeTCP4      = "tcp4"
	SchemeTCP6      = "tcp6"
	SchemeWebSocket = "ws"
)

// Address locates a server: tcp4://1.2.3.4:7150, tcp6://[::1]:7150 or
// ws://host:7151/play.
type Address struct {
	Scheme string
	Host   string // host without brackets
	Port   uint16
	Path   string // ws only
}

// ParseAddress parses and validates an address string.
func ParseAddress(s string) (Address, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrBadAddress, s, err)
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrBadAddress, s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: bad port %q", ErrBadAddress, s, portStr)
	}

	addr := Address{Scheme: u.Scheme, Host: host, Port: uint16(port)}

	switch u.Scheme {
	case SchemeTCP4, SchemeTCP6:
		ip, err := netip.ParseAddr(host)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %q: %v", ErrBadAddress, s, err)
		}
		if u.Scheme == SchemeTCP4 && !ip.Is4() {
			return Address{}, fmt.Errorf("%w: %q: not an IPv4 address", ErrBadAddress, s)
		}
		if u.Scheme == SchemeTCP6 && (!ip.Is6() || ip.Is4In6()) {
			return Address{}, fmt.Errorf("%w: %q: not an IPv6 address", ErrBadAddress, s)
		}
		if u.Path != "" {
			return Address{}, fmt.Errorf("%w: %q: unexpected path", ErrBadAddress, s)
		}
	case SchemeWebSocket:
		if host == "" {
			return Address{}, fmt.Errorf("%w: %q: missing host", ErrBadAddress, s)
		}
		addr.Path = u.Path
		if addr.Path == "" {
			addr.Path = "/"
		}
	default:
		return Address{}, fmt.Errorf("%w: %q: unknown scheme %q", ErrBadAddress, s, u.Scheme)
	}

	return addr, nil
}

// HostPort joins host and port the way net.Dial expects.
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

func (a Address) String() string {
	s := a.Scheme + "://" + a.HostPort()
	if a.Scheme == SchemeWebSocket {
		s += a.Path
	}
	return s
}

// addressFromNet converts a bound listener address back into an Address.
func addressFromNet(scheme string, na net.Addr) (Address, error) {
	ap, err := netip.ParseAddrPort(na.String())
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	return Address{Scheme: scheme, Host: ap.Addr().Unmap().String(), Port: ap.Port()}, nil
}
