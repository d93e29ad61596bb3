package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/datachat/datachat/internal/ai"
	"github.com/datachat/datachat/internal/analytics"
	"github.com/datachat/datachat/internal/apperr"
	"github.com/datachat/datachat/internal/fewshot"
	"github.com/datachat/datachat/internal/geo"
	"github.com/datachat/datachat/internal/render"
	"github.com/datachat/datachat/internal/synthesis"
)

// scriptedProvider answers decision requests (JSON mode) with a canned
// decision and prose requests with a canned sentence.
type scriptedProvider struct {
	decision string
	prose    string

	lastDecisionMsgs []ai.Message
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []ai.Message, opts ai.ChatOptions) (string, error) {
	_ = ctx
	if opts.JSONOnly {
		p.lastDecisionMsgs = append([]ai.Message(nil), messages...)
		return p.decision, nil
	}
	return p.prose, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	_ = ctx
	// deterministic, content-sensitive
	v := make([]float32, 4)
	for i, r := range text {
		v[i%4] += float32(r)
	}
	return v, nil
}

func (fakeEmbedder) ModelName() string { return "fake-embed" }

type fakeExecutor struct {
	result  analytics.Result
	lastSQL string
}

func (e *fakeExecutor) Query(ctx context.Context, sql string) (*analytics.Result, error) {
	_ = ctx
	e.lastSQL = sql
	return &e.result, nil
}

type fakeGeocoder struct{}

func (fakeGeocoder) Geocode(ctx context.Context, address string) (geo.Point, error) {
	_ = ctx
	_ = address
	return geo.Point{Lat: 40.1, Lng: -88.2}, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Chat{}, &Turn{}, &Feedback{}, &Job{}, &fewshot.Record{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

const countDecision = `{"relevance_score":9,"executable":"yes","sql":"SELECT COUNT(*) FROM restaurants","asks_about_location":"no","visualization_kind":"none"}`

func newTestService(t *testing.T, db *gorm.DB, prov *scriptedProvider, exec *fakeExecutor) *Service {
	t.Helper()
	examples := fewshot.NewStore(db, fakeEmbedder{}, 3, 2, 0.35)
	synth := synthesis.New(prov, examples, "tables: restaurants(name, city)", 500)
	renderer := render.NewRenderer(prov, fakeGeocoder{}, 30, 500)
	return NewService(NewRepo(db), synth, renderer, exec, examples, 20)
}

func mustCreateChat(t *testing.T, svc *Service, userID uint64, title string) *Chat {
	t.Helper()
	c, err := svc.CreateChat(context.Background(), userID, title)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	return c
}

func TestAsk_PersistsTurnWithDecision(t *testing.T) {
	db := openTestDB(t)
	prov := &scriptedProvider{decision: countDecision, prose: "There are 42 restaurants."}
	exec := &fakeExecutor{result: analytics.Result{
		Columns: []string{"count"},
		Rows:    [][]any{{int64(42)}},
	}}
	svc := newTestService(t, db, prov, exec)

	c := mustCreateChat(t, svc, 101, "restaurants")

	turn, err := svc.Ask(context.Background(), 101, c.ID, "How many restaurants are there?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if turn.ID == 0 {
		t.Fatalf("expected persisted turn id")
	}
	if turn.Response != "There are 42 restaurants." {
		t.Fatalf("unexpected response: %q", turn.Response)
	}
	if turn.ResponseKind != "text" {
		t.Fatalf("unexpected response kind: %q", turn.ResponseKind)
	}
	if turn.SQLQuery != "SELECT COUNT(*) FROM restaurants" {
		t.Fatalf("decision sql not persisted: %q", turn.SQLQuery)
	}
	if exec.lastSQL != "SELECT COUNT(*) FROM restaurants" {
		t.Fatalf("executor got %q", exec.lastSQL)
	}

	var stored Turn
	if err := db.First(&stored, "id = ?", turn.ID).Error; err != nil {
		t.Fatalf("load turn: %v", err)
	}
	if stored.RelevanceScore != 9 || stored.Executable != "yes" {
		t.Fatalf("decision fields not stored: %+v", stored)
	}
}

func TestAsk_OffTopicPersistsNothing(t *testing.T) {
	db := openTestDB(t)
	prov := &scriptedProvider{
		decision: `{"relevance_score":2,"executable":"yes","sql":"SELECT 1","asks_about_location":"no","visualization_kind":"none"}`,
	}
	svc := newTestService(t, db, prov, &fakeExecutor{})

	c := mustCreateChat(t, svc, 102, "offtopic")

	_, err := svc.Ask(context.Background(), 102, c.ID, "What is the capital of France?")
	var rel *apperr.RelevanceRejection
	if !errors.As(err, &rel) {
		t.Fatalf("expected relevance rejection, got %v", err)
	}
	if rel.Score != 2 {
		t.Fatalf("unexpected score: %d", rel.Score)
	}

	var n int64
	if err := db.Model(&Turn{}).Where("chat_id = ?", c.ID).Count(&n).Error; err != nil {
		t.Fatalf("count turns: %v", err)
	}
	if n != 0 {
		t.Fatalf("rejected question must not persist a turn, found %d", n)
	}
}

func TestAsk_ForeignChatLooksMissing(t *testing.T) {
	db := openTestDB(t)
	prov := &scriptedProvider{decision: countDecision, prose: "ok"}
	svc := newTestService(t, db, prov, &fakeExecutor{})

	c := mustCreateChat(t, svc, 103, "mine")

	_, err := svc.Ask(context.Background(), 104, c.ID, "How many restaurants?")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record-not-found for foreign chat, got %v", err)
	}
}

func TestRecordFeedback_PositivePromotesExample(t *testing.T) {
	db := openTestDB(t)
	prov := &scriptedProvider{decision: countDecision, prose: "There are 42 restaurants."}
	exec := &fakeExecutor{result: analytics.Result{Columns: []string{"count"}, Rows: [][]any{{int64(42)}}}}
	svc := newTestService(t, db, prov, exec)

	c := mustCreateChat(t, svc, 105, "promote")
	turn, err := svc.Ask(context.Background(), 105, c.ID, "How many restaurants are there?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	if _, err := svc.RecordFeedback(context.Background(), 105, turn.ID, FeedbackPositive, ""); err != nil {
		t.Fatalf("feedback: %v", err)
	}

	examples := fewshot.NewStore(db, fakeEmbedder{}, 3, 2, 0.35)
	recs, err := examples.List(context.Background(), fewshot.UserScope(105))
	if err != nil {
		t.Fatalf("list examples: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 promoted example, got %d", len(recs))
	}
	if recs[0].Question != turn.Question {
		t.Fatalf("promoted question mismatch: %q", recs[0].Question)
	}
}

func TestRecordFeedback_NegativeRegeneratesInPlace(t *testing.T) {
	db := openTestDB(t)
	prov := &scriptedProvider{decision: countDecision, prose: "There are 42 restaurants."}
	exec := &fakeExecutor{result: analytics.Result{Columns: []string{"count"}, Rows: [][]any{{int64(42)}}}}
	svc := newTestService(t, db, prov, exec)

	c := mustCreateChat(t, svc, 106, "regen")
	turn, err := svc.Ask(context.Background(), 106, c.ID, "How many restaurants are there?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	originalCreated := turn.CreatedAt

	prov.decision = `{"relevance_score":9,"executable":"yes","sql":"SELECT COUNT(*) FROM restaurants WHERE city = 'Urbana'","asks_about_location":"no","visualization_kind":"none"}`
	prov.prose = "Urbana has 7 restaurants."

	updated, err := svc.RecordFeedback(context.Background(), 106, turn.ID, FeedbackNegative, "I meant Urbana only")
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if updated.ID != turn.ID {
		t.Fatalf("regeneration must keep turn identity: %d vs %d", updated.ID, turn.ID)
	}
	if updated.Response != "Urbana has 7 restaurants." {
		t.Fatalf("response not regenerated: %q", updated.Response)
	}

	var stored Turn
	if err := db.First(&stored, "id = ?", turn.ID).Error; err != nil {
		t.Fatalf("load turn: %v", err)
	}
	if stored.Response != "Urbana has 7 restaurants." {
		t.Fatalf("stored response not updated: %q", stored.Response)
	}
	if !stored.CreatedAt.Equal(originalCreated) {
		t.Fatalf("creation time must be preserved")
	}
	// the corrective comment reaches the model as part of the revision turn
	found := false
	for _, m := range prov.lastDecisionMsgs {
		if m.Role == "user" && strings.Contains(m.Content, "I meant Urbana only") {
			found = true
		}
	}
	if !found {
		t.Fatalf("corrective comment missing from synthesis messages")
	}
}

func TestDeleteChat_CascadesButKeepsExamples(t *testing.T) {
	db := openTestDB(t)
	prov := &scriptedProvider{decision: countDecision, prose: "There are 42 restaurants."}
	exec := &fakeExecutor{result: analytics.Result{Columns: []string{"count"}, Rows: [][]any{{int64(42)}}}}
	svc := newTestService(t, db, prov, exec)

	c := mustCreateChat(t, svc, 107, "cascade")
	turn, err := svc.Ask(context.Background(), 107, c.ID, "How many restaurants are there?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, err := svc.RecordFeedback(context.Background(), 107, turn.ID, FeedbackPositive, ""); err != nil {
		t.Fatalf("feedback: %v", err)
	}

	if err := svc.DeleteChat(context.Background(), 107, c.ID); err != nil {
		t.Fatalf("delete chat: %v", err)
	}

	var n int64
	if err := db.Model(&Turn{}).Where("chat_id = ?", c.ID).Count(&n).Error; err != nil {
		t.Fatalf("count turns: %v", err)
	}
	if n != 0 {
		t.Fatalf("turns not cascaded, %d left", n)
	}
	if err := db.Model(&Feedback{}).Where("turn_id = ?", turn.ID).Count(&n).Error; err != nil {
		t.Fatalf("count feedback: %v", err)
	}
	if n != 0 {
		t.Fatalf("feedback not cascaded, %d left", n)
	}

	examples := fewshot.NewStore(db, fakeEmbedder{}, 3, 2, 0.35)
	recs, err := examples.List(context.Background(), fewshot.UserScope(107))
	if err != nil {
		t.Fatalf("list examples: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("promoted examples must survive chat deletion, got %d", len(recs))
	}
}

func TestRunJob_SucceedsAndLinksTurn(t *testing.T) {
	db := openTestDB(t)
	prov := &scriptedProvider{decision: countDecision, prose: "There are 42 restaurants."}
	exec := &fakeExecutor{result: analytics.Result{Columns: []string{"count"}, Rows: [][]any{{int64(42)}}}}
	svc := newTestService(t, db, prov, exec)

	c := mustCreateChat(t, svc, 108, "jobs")
	key := "req-1"
	job, created, err := svc.CreateAskJob(context.Background(), 108, c.ID, "How many restaurants are there?", &key)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if !created {
		t.Fatalf("expected new job")
	}

	// same idempotency key returns the same job
	again, created, err := svc.CreateAskJob(context.Background(), 108, c.ID, "How many restaurants are there?", &key)
	if err != nil {
		t.Fatalf("create job again: %v", err)
	}
	if created || again.ID != job.ID {
		t.Fatalf("idempotency key must dedupe: created=%v id=%s want %s", created, again.ID, job.ID)
	}

	if err := svc.RunJob(context.Background(), job.ID); err != nil {
		t.Fatalf("run job: %v", err)
	}

	done, err := svc.GetJob(context.Background(), 108, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if done.Status != JobSucceeded {
		t.Fatalf("unexpected status: %s", done.Status)
	}
	if done.ResultTurnID == nil {
		t.Fatalf("succeeded job must reference its turn")
	}
	if _, err := NewRepo(db).GetTurnByID(context.Background(), *done.ResultTurnID); err != nil {
		t.Fatalf("result turn missing: %v", err)
	}
}

func TestRunJob_RejectionMarksFailedWithoutError(t *testing.T) {
	db := openTestDB(t)
	prov := &scriptedProvider{
		decision: `{"relevance_score":9,"executable":"no","sql":"NULL","asks_about_location":"no","visualization_kind":"none"}`,
	}
	svc := newTestService(t, db, prov, &fakeExecutor{})

	c := mustCreateChat(t, svc, 109, "rejected job")
	job, _, err := svc.CreateAskJob(context.Background(), 109, c.ID, "drop everything", nil)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := svc.RunJob(context.Background(), job.ID); err != nil {
		t.Fatalf("rejections are terminal, RunJob must not error: %v", err)
	}

	done, err := svc.GetJob(context.Background(), 109, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if done.Status != JobFailed {
		t.Fatalf("unexpected status: %s", done.Status)
	}
	if done.Error == nil || *done.Error == "" {
		t.Fatalf("failed job must carry the reason")
	}
}
