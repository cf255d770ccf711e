package report

import (
	"time"

	"github.com/tbckr/lapse/internal/model"
)

// Portfolio lists monitored domains with their stored expiry.
type Portfolio struct {
	Domains []model.Domain `json:"domains"`
	now     time.Time
}

// NewPortfolio wraps domains for output.
func NewPortfolio(domains []model.Domain, now time.Time) *Portfolio {
	return &Portfolio{Domains: domains, now: now}
}

// Header implements output.Tabular.
func (p *Portfolio) Header() []string {
	return []string{"DOMAIN", "REGISTRATION", "DAYS", "CERTIFICATE", "DAYS"}
}

// Rows implements output.Tabular.
func (p *Portfolio) Rows() [][]string {
	rows := make([][]string, 0, len(p.Domains))
	for _, d := range p.Domains {
		rows = append(rows, []string{
			d.Name,
			formatDate(d.Registration.ExpiresAt),
			formatDays(d.Registration.ExpiresAt, p.now),
			formatDate(d.Certificate.ExpiresAt),
			formatDays(d.Certificate.ExpiresAt, p.now),
		})
	}
	return rows
}

// Incidents lists incidents.
type Incidents struct {
	Incidents []model.Incident `json:"incidents"`
}

// Header implements output.Tabular.
func (i *Incidents) Header() []string {
	return []string{"ID", "DOMAIN", "CATEGORY", "OPENED", "RESOLVED", "NOTE"}
}

// Rows implements output.Tabular.
func (i *Incidents) Rows() [][]string {
	rows := make([][]string, 0, len(i.Incidents))
	for _, inc := range i.Incidents {
		opened := inc.OpenedAt
		rows = append(rows, []string{
			inc.ID,
			inc.DomainID,
			inc.Category.String(),
			formatDate(&opened),
			formatDate(inc.ResolvedAt),
			orDash(inc.Note),
		})
	}
	return rows
}
