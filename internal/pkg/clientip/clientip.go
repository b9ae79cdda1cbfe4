// Package clientip resolves the address a request originated from.
package clientip

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Resolver honors forwarding headers only on connections from a trusted
// proxy. The zero value, and a nil Resolver, trust nobody and always answer
// the remote host.
type Resolver struct {
	trusted []netip.Prefix
}

// New builds a Resolver from CIDRs or bare addresses of the proxies in front
// of the service.
func New(proxies ...string) (*Resolver, error) {
	rv := &Resolver{}
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			addr, err := netip.ParseAddr(p)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
			}
			addr = addr.Unmap()
			rv.trusted = append(rv.trusted, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(p)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
		}
		rv.trusted = append(rv.trusted, prefix.Masked())
	}
	return rv, nil
}

// FromRequest returns the remote host unless it is a trusted proxy. Behind a
// trusted proxy it walks X-Forwarded-For from the right and returns the first
// hop that is not itself trusted; hops further left are client supplied.
// X-Real-Ip is consulted only when the chain holds nothing but proxies.
func (rv *Resolver) FromRequest(r *http.Request) string {
	remote := hostOf(r.RemoteAddr)
	if !rv.trusts(remote) {
		return remote
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	leftmost := ""
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !rv.trusts(hop) {
			return hop
		}
		leftmost = hop
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	if leftmost != "" {
		return leftmost
	}
	return remote
}

func (rv *Resolver) trusts(ip string) bool {
	if rv == nil || len(rv.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rv.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
