// Package testutil provides shared fakes and helpers for package tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// NopLogger returns a logger that discards all output.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Clock is a manually advanced clock. Pass Clock.Now wherever a
// func() time.Time is accepted.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MockResolver implements dnsrecord.NetResolver for testing.
// Each field is a function so tests can set only the methods they need.
type MockResolver struct {
	LookupIPAddrFn func(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupMXFn     func(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXTFn    func(ctx context.Context, name string) ([]string, error)
}

// LookupIPAddr implements dnsrecord.NetResolver.
func (m *MockResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	if m.LookupIPAddrFn != nil {
		return m.LookupIPAddrFn(ctx, host)
	}
	return nil, nil
}

// LookupMX implements dnsrecord.NetResolver.
func (m *MockResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	if m.LookupMXFn != nil {
		return m.LookupMXFn(ctx, name)
	}
	return nil, nil
}

// LookupTXT implements dnsrecord.NetResolver.
func (m *MockResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if m.LookupTXTFn != nil {
		return m.LookupTXTFn(ctx, name)
	}
	return nil, nil
}
