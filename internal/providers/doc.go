// Package providers assembles the expiry provider chains from configuration.
//
// Each upstream lives in its own subpackage and implements expiry.Provider.
// Build wires them in priority order: registration sources first for the
// domain chain, then the direct TLS handshake ahead of certificate
// transparency for the SSL chain.
package providers
