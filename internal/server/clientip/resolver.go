// Package clientip derives the rate-limiting identity of a request from its
// transport peer and, when the peer is a trusted proxy, a forwarding header.
package clientip

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/dmitrijs2005/zappro/internal/common"
	"github.com/dmitrijs2005/zappro/internal/logging"
)

// Resolver is immutable after construction and safe for concurrent use.
type Resolver struct {
	trusted []netip.Prefix
	header  string
}

// New parses trusted proxy entries (IPs or CIDR blocks). A bare address is
// treated as a single-host network. Invalid entries are logged and skipped.
func New(trusted []string, header string, logger logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Nop{}
	}
	if header == "" {
		header = common.ClientIPHeaderName
	}

	r := &Resolver{header: header}
	for _, raw := range trusted {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		prefix, err := parseEntry(raw)
		if err != nil {
			logger.Warn(context.Background(), "ignoring invalid trusted proxy entry", "entry", raw, "error", err)
			continue
		}
		r.trusted = append(r.trusted, prefix)
	}
	return r
}

func parseEntry(raw string) (netip.Prefix, error) {
	if strings.Contains(raw, "/") {
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Header returns the forwarding header the resolver reads.
func (r *Resolver) Header() string {
	return r.header
}

// Trusts reports whether ip belongs to a trusted proxy network. Unparsable
// input is never trusted.
func (r *Resolver) Trusts(ip string) bool {
	addr, err := netip.ParseAddr(stripPort(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range r.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolve returns the client identity for a request whose transport peer is
// peer. When the peer is a trusted proxy the first non-empty element of the
// forwarding header wins; otherwise the header is ignored.
func (r *Resolver) Resolve(peer string, headers http.Header) string {
	host := stripPort(strings.TrimSpace(peer))
	if host == "" {
		return common.AnonymousClient
	}
	if !r.Trusts(host) {
		return host
	}

	for _, value := range headers.Values(r.header) {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				return part
			}
		}
	}
	return host
}

// stripPort removes a trailing port from host:port and [v6]:port forms and
// leaves bare addresses untouched.
func stripPort(s string) string {
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
}
