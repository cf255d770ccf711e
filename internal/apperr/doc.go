// Package apperr defines the error sentinels shared across lapse.
// It imports nothing from the rest of the module so that providers,
// stores and the CLI can all wrap the same values.
package apperr
