package report

import (
	"time"

	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/model"
	"github.com/tbckr/lapse/internal/scan"
)

// Scan is the output of `lapse check`.
type Scan struct {
	Domains []ScanDomain `json:"domains"`
	now     time.Time
}

// ScanDomain is the stored state of one domain after a check, plus what the
// check detected.
type ScanDomain struct {
	Domain       model.Domain   `json:"domain"`
	Registration *expiry.Result `json:"registration_detected,omitempty"`
	Certificate  *expiry.Result `json:"certificate_detected,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// NewScan builds a report from scan outcomes.
func NewScan(outcomes []scan.Outcome, now time.Time) *Scan {
	s := &Scan{Domains: make([]ScanDomain, 0, len(outcomes)), now: now}
	for _, o := range outcomes {
		sd := ScanDomain{Domain: o.Domain, Registration: o.Registration, Certificate: o.Certificate}
		if o.Err != nil {
			sd.Error = o.Err.Error()
		}
		s.Domains = append(s.Domains, sd)
	}
	return s
}

// Header implements output.Tabular.
func (s *Scan) Header() []string {
	return []string{"DOMAIN", "CHECK", "EXPIRES", "DAYS LEFT", "SOURCE", "STATUS"}
}

// Rows implements output.Tabular. Each domain yields a domain row and an ssl row.
func (s *Scan) Rows() [][]string {
	rows := make([][]string, 0, 2*len(s.Domains))
	for _, sd := range s.Domains {
		for _, check := range []model.CheckType{model.CheckDomain, model.CheckSSL} {
			st := sd.Domain.State(check)
			status := Status(st.ExpiresAt, s.now)
			if sd.Error != "" {
				status = "error: " + sd.Error
			}
			rows = append(rows, []string{
				sd.Domain.Name,
				check.String(),
				formatDate(st.ExpiresAt),
				formatDays(st.ExpiresAt, s.now),
				orDash(st.Source),
				status,
			})
		}
	}
	return rows
}

// GroupByFirstColumn implements output.Grouped.
func (s *Scan) GroupByFirstColumn() bool { return true }
