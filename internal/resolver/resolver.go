package resolver

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/net/proxy"
)

// NewResolver returns a *net.Resolver appropriate for the given proxy URL.
//
// An empty proxyURL falls back to ALL_PROXY / all_proxy. Anything that is not
// a socks5:// URL yields the platform resolver (nil Dial). A socks5:// URL
// yields a pure-Go resolver that sends DNS over TCP through the proxy.
func NewResolver(proxyURL string) (*net.Resolver, error) {
	if proxyURL == "" {
		proxyURL = os.Getenv("ALL_PROXY")
		if proxyURL == "" {
			proxyURL = os.Getenv("all_proxy")
		}
	}
	if !strings.HasPrefix(proxyURL, "socks5://") {
		return &net.Resolver{}, nil
	}

	host := strings.TrimPrefix(proxyURL, "socks5://")
	dialer, err := proxy.SOCKS5("tcp", host, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("creating SOCKS5 dialer for DNS: %w", err)
	}
	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer does not implement ContextDialer")
	}

	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, _, address string) (net.Conn, error) {
			return ctxDialer.DialContext(ctx, "tcp", address)
		},
	}, nil
}
