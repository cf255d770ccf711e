// Package resolver builds the *net.Resolver used by the system DNS backend.
// When a SOCKS5 proxy is configured, queries are tunnelled through it so
// record lookups do not leak to the local resolver.
package resolver
