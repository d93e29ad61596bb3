package synthesis

import "regexp"

// Few-shot examples accumulated from earlier deployments use MySQL-style
// MONTH()/YEAR(); the target dialect wants EXTRACT. The rewrite is a plain
// text substitution and is idempotent: the replacement text no longer
// contains "MONTH(" or "YEAR(".
var (
	monthCall = regexp.MustCompile(`(?i)\bMONTH\(\s*([^()]+?)\s*\)`)
	yearCall  = regexp.MustCompile(`(?i)\bYEAR\(\s*([^()]+?)\s*\)`)
)

func RewriteDialect(sql string) string {
	sql = monthCall.ReplaceAllString(sql, "EXTRACT(MONTH FROM $1)")
	sql = yearCall.ReplaceAllString(sql, "EXTRACT(YEAR FROM $1)")
	return sql
}
