package evaluate

import (
	"strings"
)

// FormatReport renders the final evaluation block:
//
//	eval type: <t>
//	per eval dataset: <name>
//	key: value
//	...
func FormatReport(evalType string, results []DatasetResult) string {
	var b strings.Builder
	b.WriteString("eval type: " + evalType + "\n")
	for _, r := range results {
		b.WriteString("per eval dataset: " + r.Name + "\n")
		for _, line := range r.Metrics.Lines() {
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}
