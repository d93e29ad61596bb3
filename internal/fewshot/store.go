package fewshot

import (
	"context"
	"encoding/json"
	"sort"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/datachat/datachat/internal/ai"
	"github.com/datachat/datachat/internal/apperr"
	"github.com/datachat/datachat/internal/synthesis"
)

// Store is the example bank: a vector index over past (question, decision)
// pairs, partitioned into a global pool and per-user pools.
type Store struct {
	db          *gorm.DB
	embedder    ai.Embedder
	topKGlobal  int
	topKUser    int
	maxDistance float64
}

func NewStore(db *gorm.DB, embedder ai.Embedder, topKGlobal, topKUser int, maxDistance float64) *Store {
	if topKGlobal <= 0 {
		topKGlobal = 3
	}
	if topKUser <= 0 {
		topKUser = 2
	}
	if maxDistance <= 0 {
		maxDistance = 0.35
	}
	return &Store{
		db:          db,
		embedder:    embedder,
		topKGlobal:  topKGlobal,
		topKUser:    topKUser,
		maxDistance: maxDistance,
	}
}

// Add embeds the question and upserts the example under its content hash.
// Re-adding the same question in the same scope overwrites the stored
// decision and vector.
func (s *Store) Add(ctx context.Context, scope Scope, question string, decision synthesis.Decision) error {
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return &apperr.Provider{Op: "embed", Err: err}
	}
	vecJSON, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	decJSON, err := json.Marshal(decision)
	if err != nil {
		return err
	}

	rec := Record{
		ID:         ContentID(question),
		Scope:      string(scope),
		Question:   question,
		Decision:   string(decJSON),
		EmbedModel: s.embedder.ModelName(),
		Vector:     string(vecJSON),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

type scored struct {
	example  synthesis.Example
	distance float64
}

// Search embeds the query and returns the nearest examples in the scope,
// nearest first, dropping anything beyond the distance threshold.
func (s *Store) Search(ctx context.Context, query string, scope Scope, topK int, maxDistance float64) ([]synthesis.Example, error) {
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &apperr.Provider{Op: "embed", Err: err}
	}

	var records []Record
	if err := s.db.WithContext(ctx).
		Where("scope = ? AND embed_model = ?", string(scope), s.embedder.ModelName()).
		Find(&records).Error; err != nil {
		return nil, err
	}

	candidates := make([]scored, 0, len(records))
	for _, rec := range records {
		var vec []float32
		if err := json.Unmarshal([]byte(rec.Vector), &vec); err != nil {
			log.WithField("id", rec.ID).Warnf("skipping example with bad vector: %v", err)
			continue
		}
		dist, err := CosineDistance(queryVec, vec)
		if err != nil {
			log.WithField("id", rec.ID).Warnf("skipping example: %v", err)
			continue
		}
		if dist > maxDistance {
			continue
		}
		var decision synthesis.Decision
		if err := json.Unmarshal([]byte(rec.Decision), &decision); err != nil {
			log.WithField("id", rec.ID).Warnf("skipping example with bad decision: %v", err)
			continue
		}
		candidates = append(candidates, scored{
			example:  synthesis.Example{Question: rec.Question, Decision: decision},
			distance: dist,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make([]synthesis.Example, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.example)
	}
	return out, nil
}

// SearchCombined unions global-pool and user-pool results, global first,
// to blend general and personalized few-shot examples.
func (s *Store) SearchCombined(ctx context.Context, question string, userID uint64) ([]synthesis.Example, error) {
	global, err := s.Search(ctx, question, ScopeGlobal, s.topKGlobal, s.maxDistance)
	if err != nil {
		return nil, err
	}
	personal, err := s.Search(ctx, question, UserScope(userID), s.topKUser, s.maxDistance)
	if err != nil {
		return nil, err
	}
	return append(global, personal...), nil
}

// List returns the stored examples of a scope without their vectors.
func (s *Store) List(ctx context.Context, scope Scope) ([]Record, error) {
	var records []Record
	if err := s.db.WithContext(ctx).
		Select("id", "scope", "question", "decision", "embed_model", "created_at").
		Where("scope = ?", string(scope)).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) Delete(ctx context.Context, scope Scope, id string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND scope = ?", id, string(scope)).
		Delete(&Record{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, scope Scope) error {
	return s.db.WithContext(ctx).
		Where("scope = ?", string(scope)).
		Delete(&Record{}).Error
}

var _ synthesis.ExampleSource = (*Store)(nil)
