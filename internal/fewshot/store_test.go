package fewshot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/datachat/datachat/internal/synthesis"
)

// directionEmbedder maps known questions to fixed unit vectors so distances
// are predictable: same direction = 0, orthogonal = 1.
type directionEmbedder struct {
	vectors map[string][]float32
	model   string
}

func (e directionEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	_ = ctx
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (e directionEmbedder) ModelName() string {
	if e.model != "" {
		return e.model
	}
	return "test-embed"
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// one named in-memory database per test, shared across pool connections
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func sampleDecision(sql string) synthesis.Decision {
	return synthesis.Decision{
		RelevanceScore:    9,
		Executable:        "yes",
		SQL:               sql,
		AsksAboutLocation: "no",
		Visualization:     synthesis.VizNone,
	}
}

func TestAddAndSearch_NearestFirstWithinThreshold(t *testing.T) {
	db := openTestDB(t)
	emb := directionEmbedder{vectors: map[string][]float32{
		"How many restaurants are there?":   {1, 0, 0},
		"Count the restaurants":             {0.9, 0.1, 0},
		"What is the weather on the moon?":  {0, 1, 0},
		"How many restaurants are in town?": {1, 0, 0},
	}}
	store := NewStore(db, emb, 3, 2, 0.35)

	ctx := context.Background()
	for _, q := range []string{
		"How many restaurants are there?",
		"Count the restaurants",
		"What is the weather on the moon?",
	} {
		if err := store.Add(ctx, ScopeGlobal, q, sampleDecision("SELECT 1")); err != nil {
			t.Fatalf("add %q: %v", q, err)
		}
	}

	got, err := store.Search(ctx, "How many restaurants are in town?", ScopeGlobal, 3, 0.35)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// The orthogonal question is beyond the threshold and must not appear.
	if len(got) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(got))
	}
	if got[0].Question != "How many restaurants are there?" {
		t.Fatalf("nearest example must come first, got %q", got[0].Question)
	}
}

func TestAdd_SameQuestionOverwrites(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, directionEmbedder{}, 3, 2, 0.35)

	ctx := context.Background()
	q := "How many restaurants are there?"
	if err := store.Add(ctx, ScopeGlobal, q, sampleDecision("SELECT 1")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Add(ctx, ScopeGlobal, q, sampleDecision("SELECT 2")); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	recs, err := store.List(ctx, ScopeGlobal)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected overwrite, got %d records", len(recs))
	}

	got, err := store.Search(ctx, q, ScopeGlobal, 1, 0.35)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Decision.SQL != "SELECT 2" {
		t.Fatalf("expected updated decision, got %+v", got)
	}
}

func TestSearchCombined_GlobalBeforePersonal(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, directionEmbedder{}, 3, 2, 0.35)

	ctx := context.Background()
	if err := store.Add(ctx, ScopeGlobal, "global question", sampleDecision("SELECT 'g'")); err != nil {
		t.Fatalf("add global: %v", err)
	}
	if err := store.Add(ctx, UserScope(7), "personal question", sampleDecision("SELECT 'p'")); err != nil {
		t.Fatalf("add personal: %v", err)
	}

	got, err := store.SearchCombined(ctx, "anything", 7)
	if err != nil {
		t.Fatalf("search combined: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both pools, got %d", len(got))
	}
	if got[0].Decision.SQL != "SELECT 'g'" || got[1].Decision.SQL != "SELECT 'p'" {
		t.Fatalf("expected global before personal, got %+v", got)
	}
}

func TestSearchCombined_ScopesAreIsolated(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, directionEmbedder{}, 3, 2, 0.35)

	ctx := context.Background()
	if err := store.Add(ctx, UserScope(1), "user one question", sampleDecision("SELECT 1")); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := store.SearchCombined(ctx, "user one question", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("user 2 must not see user 1 examples, got %d", len(got))
	}
}

func TestSearch_IgnoresOtherEmbedModels(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	old := NewStore(db, directionEmbedder{model: "embed-v1"}, 3, 2, 0.35)
	if err := old.Add(ctx, ScopeGlobal, "legacy question", sampleDecision("SELECT 1")); err != nil {
		t.Fatalf("add: %v", err)
	}

	current := NewStore(db, directionEmbedder{model: "embed-v2"}, 3, 2, 0.35)
	got, err := current.Search(ctx, "legacy question", ScopeGlobal, 3, 0.35)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("rows from another embedding model must be invisible, got %d", len(got))
	}
}

func TestDelete(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, directionEmbedder{}, 3, 2, 0.35)

	ctx := context.Background()
	q := "deletable question"
	if err := store.Add(ctx, ScopeGlobal, q, sampleDecision("SELECT 1")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Delete(ctx, ScopeGlobal, ContentID(q)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, ScopeGlobal, ContentID(q)); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record-not-found on second delete, got %v", err)
	}
}

func TestCosineDistance(t *testing.T) {
	cases := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 0},
		{[]float32{1, 0}, []float32{0, 1}, 1},
		{[]float32{1, 0}, []float32{-1, 0}, 2},
	}
	for _, tc := range cases {
		got, err := CosineDistance(tc.a, tc.b)
		if err != nil {
			t.Fatalf("cosine distance: %v", err)
		}
		if diff := got - tc.want; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("CosineDistance(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCosineDistance_LengthMismatch(t *testing.T) {
	if _, err := CosineDistance([]float32{1, 0}, []float32{1, 0, 0}); err == nil {
		t.Fatalf("expected error for mismatched lengths")
	}
}
