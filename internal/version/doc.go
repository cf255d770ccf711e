// Package version reports the lapse build. Values come from -ldflags when set,
// otherwise from runtime/debug.BuildInfo, so `go install` builds still report
// a real module version and revision.
package version
