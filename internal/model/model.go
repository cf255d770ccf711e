// Package model holds the records lapse reads and writes: monitored domains,
// their two expiry states and the incidents raised against them.
package model

import (
	"fmt"
	"time"

	"github.com/tbckr/lapse/internal/apperr"
)

// CheckType selects which expiry a check is about. Its string form doubles
// as the incident category.
type CheckType string

const (
	CheckDomain CheckType = "domain"
	CheckSSL    CheckType = "ssl"
)

// String implements fmt.Stringer.
func (c CheckType) String() string { return string(c) }

// ParseCheckType accepts "domain" or "ssl".
func ParseCheckType(s string) (CheckType, error) {
	switch CheckType(s) {
	case CheckDomain, CheckSSL:
		return CheckType(s), nil
	default:
		return "", fmt.Errorf("%w: check type must be %q or %q, got %q", apperr.ErrInvalidInput, CheckDomain, CheckSSL, s)
	}
}

// ExpiryState is the stored expiry for one check type.
type ExpiryState struct {
	ExpiresAt  *time.Time `yaml:"expires_at,omitempty" json:"expires_at,omitempty"`
	Source     string     `yaml:"source,omitempty" json:"source,omitempty"`
	DetectedAt *time.Time `yaml:"detected_at,omitempty" json:"detected_at,omitempty"`
}

// Domain is one monitored domain.
type Domain struct {
	ID           string      `yaml:"id" json:"id"`
	Name         string      `yaml:"name" json:"name"`
	Registration ExpiryState `yaml:"registration" json:"registration"`
	Certificate  ExpiryState `yaml:"certificate" json:"certificate"`
}

// State returns the expiry state tracked for checkType.
func (d *Domain) State(checkType CheckType) *ExpiryState {
	if checkType == CheckSSL {
		return &d.Certificate
	}
	return &d.Registration
}

// Incident is an alert raised against a domain for one check type.
type Incident struct {
	ID         string     `yaml:"id" json:"id"`
	DomainID   string     `yaml:"domain_id" json:"domain_id"`
	Category   CheckType  `yaml:"category" json:"category"`
	Note       string     `yaml:"note,omitempty" json:"note,omitempty"`
	OpenedAt   time.Time  `yaml:"opened_at" json:"opened_at"`
	ResolvedAt *time.Time `yaml:"resolved_at,omitempty" json:"resolved_at,omitempty"`
}

// Open reports whether the incident is still unresolved.
func (i *Incident) Open() bool { return i.ResolvedAt == nil }
