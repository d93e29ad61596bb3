package synthesis

import "testing"

func TestParseDecision_Valid(t *testing.T) {
	raw := `{"relevance_score":8,"executable":"yes","sql":"SELECT name FROM restaurants","asks_about_location":"no","visualization_kind":"bar_chart"}`
	d, ok := ParseDecision(raw)
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if d.RelevanceScore != 8 || !d.IsExecutable() || d.Visualization != VizBarChart {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestParseDecision_FencedOutput(t *testing.T) {
	raw := "```json\n{\"relevance_score\":5,\"executable\":\"yes\",\"sql\":\"SELECT 1\",\"asks_about_location\":\"no\",\"visualization_kind\":\"none\"}\n```"
	d, ok := ParseDecision(raw)
	if !ok {
		t.Fatalf("expected fenced output to parse")
	}
	if d.SQL != "SELECT 1" {
		t.Fatalf("unexpected sql: %q", d.SQL)
	}
}

func TestParseDecision_FencedSQLField(t *testing.T) {
	raw := `{"relevance_score":6,"executable":"yes","sql":"` + "```sql\\nSELECT 2\\n```" + `","asks_about_location":"no","visualization_kind":"none"}`
	d, ok := ParseDecision(raw)
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if d.SQL != "SELECT 2" {
		t.Fatalf("fence not stripped from sql field: %q", d.SQL)
	}
}

func TestParseDecision_InvalidFallsBackToSafeDefault(t *testing.T) {
	cases := []string{
		"not json at all",
		`{"relevance_score":0,"executable":"yes","sql":"SELECT 1","asks_about_location":"no","visualization_kind":"none"}`,
		`{"relevance_score":11,"executable":"yes","sql":"SELECT 1","asks_about_location":"no","visualization_kind":"none"}`,
		`{"relevance_score":5,"executable":"maybe","sql":"SELECT 1","asks_about_location":"no","visualization_kind":"none"}`,
		`{"relevance_score":5,"executable":"yes","sql":"SELECT 1","asks_about_location":"no","visualization_kind":"hologram"}`,
	}
	for _, raw := range cases {
		d, ok := ParseDecision(raw)
		if ok {
			t.Errorf("expected %q to fail validation", raw)
		}
		if d != SafeDefault() {
			t.Errorf("fallback for %q is not the safe default: %+v", raw, d)
		}
	}
}

func TestParseDecision_NotExecutableForcesNullSQL(t *testing.T) {
	raw := `{"relevance_score":7,"executable":"no","sql":"SELECT secret FROM users","asks_about_location":"no","visualization_kind":"none"}`
	d, ok := ParseDecision(raw)
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if d.SQL != "NULL" {
		t.Fatalf("non-executable decision must carry NULL sql, got %q", d.SQL)
	}
}

func TestRewriteDialect(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{
			"SELECT MONTH(order_date) FROM orders",
			"SELECT EXTRACT(MONTH FROM order_date) FROM orders",
		},
		{
			"SELECT year(o.created) , month( o.created ) FROM o",
			"SELECT EXTRACT(YEAR FROM o.created) , EXTRACT(MONTH FROM o.created) FROM o",
		},
		{
			"SELECT name FROM restaurants",
			"SELECT name FROM restaurants",
		},
	}
	for _, tc := range cases {
		if got := RewriteDialect(tc.in); got != tc.want {
			t.Errorf("RewriteDialect(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRewriteDialect_Idempotent(t *testing.T) {
	once := RewriteDialect("SELECT MONTH(dob) FROM people")
	twice := RewriteDialect(once)
	if once != twice {
		t.Fatalf("rewrite is not idempotent: %q vs %q", once, twice)
	}
}

func TestBuildMessages_HistoryAndCorrective(t *testing.T) {
	history := Transcript{
		{
			Question:         "How many orders in May?",
			FeedbackComments: []string{"I meant 2023"},
			Decision: Decision{
				RelevanceScore: 9, Executable: "yes",
				SQL: "SELECT COUNT(*) FROM orders", AsksAboutLocation: "no", Visualization: VizNone,
			},
		},
	}
	msgs := BuildMessages("sys", history, "And in June?", "use the fiscal calendar")

	if msgs[0].Role != "system" || msgs[0].Content != "sys" {
		t.Fatalf("unexpected system message: %+v", msgs[0])
	}
	if msgs[1].Role != "user" || msgs[1].Content != "How many orders in May? (I meant 2023)" {
		t.Fatalf("feedback comment not appended: %+v", msgs[1])
	}
	if msgs[2].Role != "assistant" {
		t.Fatalf("expected assistant decision message, got %+v", msgs[2])
	}
	if msgs[3].Role != "user" || msgs[3].Content != "And in June?" {
		t.Fatalf("unexpected question message: %+v", msgs[3])
	}
	last := msgs[len(msgs)-1]
	if last.Role != "user" || last.Content == "And in June?" {
		t.Fatalf("corrective instruction missing: %+v", last)
	}
}
