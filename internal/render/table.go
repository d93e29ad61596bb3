package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/datachat/datachat/internal/analytics"
)

// buildTable renders the result as an HTML table. Large result sets and
// payload-shape mismatches always land here.
func buildTable(res *analytics.Result) string {
	var b strings.Builder
	b.WriteString("<table>\n<thead><tr>")
	for _, col := range res.Columns {
		fmt.Fprintf(&b, "<th>%s</th>", html.EscapeString(col))
	}
	b.WriteString("</tr></thead>\n<tbody>\n")
	for _, row := range res.Rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(&b, "<td>%s</td>", html.EscapeString(cellString(cell)))
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</tbody>\n</table>")
	return b.String()
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
