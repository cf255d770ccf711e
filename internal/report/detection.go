package report

import (
	"time"

	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/model"
)

// Detection is the output of `lapse domain` and `lapse ssl`.
type Detection struct {
	Check model.CheckType `json:"check"`
	Items []DetectionItem `json:"results"`
	now   time.Time
}

// DetectionItem is one domain's detection answer. Result is nil when every
// provider failed or was skipped.
type DetectionItem struct {
	Domain string         `json:"domain"`
	Result *expiry.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// NewDetection creates an empty report; now anchors the days-left column.
func NewDetection(check model.CheckType, now time.Time) *Detection {
	return &Detection{Check: check, now: now}
}

// Add appends one domain's answer.
func (d *Detection) Add(domain string, res *expiry.Result, err error) {
	item := DetectionItem{Domain: domain, Result: res}
	switch {
	case err != nil:
		item.Error = err.Error()
	case res == nil:
		item.Error = "no provider returned an expiry date"
	}
	d.Items = append(d.Items, item)
}

// Header implements output.Tabular.
func (d *Detection) Header() []string {
	return []string{"DOMAIN", "EXPIRES", "DAYS LEFT", "SOURCE", "ERROR"}
}

// Rows implements output.Tabular.
func (d *Detection) Rows() [][]string {
	rows := make([][]string, 0, len(d.Items))
	for _, it := range d.Items {
		var expires *time.Time
		source := ""
		if it.Result != nil {
			expires = it.Result.ExpiryDate
			source = it.Result.Source
		}
		rows = append(rows, []string{
			it.Domain,
			formatDate(expires),
			formatDays(expires, d.now),
			orDash(source),
			orDash(it.Error),
		})
	}
	return rows
}
