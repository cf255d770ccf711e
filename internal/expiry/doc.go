// Package expiry decides when a domain's registration or certificate expiry
// can be trusted and stored.
//
// A Coordinator walks a fixed-priority chain of Providers for each check
// type and returns the first valid Result. Providers that fail are put in a
// Backoff window so later scans skip them until the window lapses. Decide
// and Coordinator.UpdateDomain apply the overwrite policy and close incidents
// once an expiry is comfortably in the future.
package expiry
