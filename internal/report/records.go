package report

// Records is the output of `lapse dns`.
type Records struct {
	Type    string   `json:"type"`
	Name    string   `json:"name"`
	Records []string `json:"records"`
}

// Header implements output.Tabular.
func (r *Records) Header() []string {
	return []string{"NAME", "TYPE", "VALUE"}
}

// Rows implements output.Tabular.
func (r *Records) Rows() [][]string {
	rows := make([][]string, 0, len(r.Records))
	for _, v := range r.Records {
		rows = append(rows, []string{r.Name, r.Type, v})
	}
	return rows
}

// GroupByFirstColumn implements output.Grouped.
func (r *Records) GroupByFirstColumn() bool { return true }
