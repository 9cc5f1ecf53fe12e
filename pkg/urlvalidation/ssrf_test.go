package urlvalidation

import (
	"errors"
	"net"
	"testing"
)

func staticResolver(addrs map[string][]string) Option {
	return WithResolver(func(host string) ([]string, error) {
		if ips, ok := addrs[host]; ok {
			return ips, nil
		}
		if net.ParseIP(host) != nil {
			return []string{host}, nil
		}
		return nil, errors.New("no such host")
	})
}

func TestValidateOutboundURL(t *testing.T) {
	resolver := staticResolver(map[string][]string{
		"api.example.com": {"93.184.216.34"},
		"localhost":       {"127.0.0.1", "::1"},
		"intranet.corp":   {"10.1.2.3"},
	})

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "valid https", url: "https://api.example.com/orders", wantErr: false},
		{name: "valid http", url: "http://api.example.com/orders", wantErr: false},
		{name: "localhost", url: "http://localhost/orders", wantErr: true},
		{name: "private name", url: "http://intranet.corp/orders", wantErr: true},
		{name: "loopback ip", url: "http://127.0.0.1/orders", wantErr: true},
		{name: "private 172.16.x", url: "http://172.16.0.1/orders", wantErr: true},
		{name: "private 192.168.x", url: "http://192.168.1.1/orders", wantErr: true},
		{name: "ftp scheme", url: "ftp://api.example.com/file", wantErr: true},
		{name: "file scheme", url: "file:///etc/passwd", wantErr: true},
		{name: "no scheme", url: "api.example.com/orders", wantErr: true},
		{name: "empty host", url: "http:///path", wantErr: true},
		{name: "ipv6 loopback", url: "http://[::1]/orders", wantErr: true},
		{name: "link-local", url: "http://169.254.1.1/orders", wantErr: true},
		{name: "cgn range", url: "http://100.64.0.1/orders", wantErr: true},
		{name: "unresolvable", url: "http://nowhere.invalid/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutboundURL(tt.url, resolver)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOutboundURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestAllowPrivateIPs(t *testing.T) {
	if err := ValidateOutboundURL("http://127.0.0.1:8080/x", AllowPrivateIPs()); err != nil {
		t.Errorf("loopback with AllowPrivateIPs: %v", err)
	}
	if err := ValidateOutboundURL("gopher://127.0.0.1/", AllowPrivateIPs()); err == nil {
		t.Error("scheme check must still apply")
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.0", false},
		{"192.168.0.1", true},
		{"127.0.0.1", true},
		{"169.254.1.1", true},
		{"0.0.0.0", true},
		{"224.0.0.1", true},
		{"255.255.255.255", true},
		{"fd00::1", true},
		{"2001:4860:4860::8888", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("invalid test IP: %s", tt.ip)
			}
			if isPrivateIP(ip) != tt.private {
				t.Errorf("isPrivateIP(%q) = %v, want %v", tt.ip, !tt.private, tt.private)
			}
		})
	}
}
