// Package urlvalidation guards outbound requests made on behalf of dialog
// definitions against server-side request forgery.
package urlvalidation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Option configures URL validation behavior.
type Option func(*validationConfig)

type validationConfig struct {
	allowPrivate bool
	resolver     func(host string) ([]string, error)
}

// AllowPrivateIPs disables the private address check. Use for tests and
// deployments that call services on the local network.
func AllowPrivateIPs() Option {
	return func(c *validationConfig) {
		c.allowPrivate = true
	}
}

// WithResolver replaces DNS resolution.
func WithResolver(fn func(host string) ([]string, error)) Option {
	return func(c *validationConfig) {
		c.resolver = fn
	}
}

// ValidateOutboundURL checks that rawURL may be called by an HttpRequest
// action. Only http and https are accepted and, unless private addresses
// are allowed, the host must not resolve to a private or reserved range.
func ValidateOutboundURL(rawURL string, opts ...Option) error {
	cfg := validationConfig{resolver: net.LookupHost}
	for _, opt := range opts {
		opt(&cfg)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "https" && scheme != "http" {
		return fmt.Errorf("URL scheme %q not allowed; use http or https", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	if cfg.allowPrivate {
		return nil
	}

	ips, err := cfg.resolver(host)
	if err != nil {
		return fmt.Errorf("cannot resolve hostname %q: %w", host, err)
	}
	for _, ipStr := range ips {
		if ip := net.ParseIP(ipStr); ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("URL resolves to private/reserved IP %s", ipStr)
		}
	}
	return nil
}

var reservedRanges = func() []*net.IPNet {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",  // link-local
		"::1/128",         // IPv6 loopback
		"fc00::/7",        // IPv6 unique local
		"fe80::/10",       // IPv6 link-local
		"100.64.0.0/10",   // shared address space (CGN)
		"0.0.0.0/8",       // "this" network
		"192.0.0.0/24",    // IETF protocol assignments
		"192.0.2.0/24",    // TEST-NET-1
		"198.51.100.0/24", // TEST-NET-2
		"203.0.113.0/24",  // TEST-NET-3
		"198.18.0.0/15",   // benchmarking
		"224.0.0.0/4",     // multicast
		"240.0.0.0/4",     // reserved
		"255.255.255.255/32",
	}
	out := make([]*net.IPNet, len(cidrs))
	for i, c := range cidrs {
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %q: %v", c, err))
		}
		out[i] = network
	}
	return out
}()

// isPrivateIP reports whether ip is in a private, loopback, link-local or
// otherwise reserved range.
func isPrivateIP(ip net.IP) bool {
	for _, network := range reservedRanges {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
