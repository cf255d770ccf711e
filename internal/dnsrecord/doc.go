// Package dnsrecord resolves TXT, A, AAAA and MX records for scanners.
//
// A Resolver answers from a per-instance memo first, then from the shared
// cache.Store, and only on a miss in both performs the network lookup with a
// bounded number of retries. Every outcome, including an empty one, is
// written to both tiers. Resolver methods never return errors: total failure
// yields an empty slice and a warning in the log.
package dnsrecord
