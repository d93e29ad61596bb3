package chat

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateChat(ctx context.Context, c *Chat) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetChatByID(ctx context.Context, chatID string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).
		Where("id = ?", chatID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) ListChatsByUser(ctx context.Context, userID uint64) ([]Chat, error) {
	var chats []Chat
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

// DeleteChatCascade removes the chat, its turns and their feedback in one
// transaction. Few-shot examples promoted from this chat are independent of
// the chat lifetime and are left untouched.
func (r *Repo) DeleteChatCascade(ctx context.Context, chatID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		turnIDs := tx.Model(&Turn{}).Select("id").Where("chat_id = ?", chatID)
		if err := tx.Where("turn_id IN (?)", turnIDs).Delete(&Feedback{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&Turn{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", chatID).Delete(&Chat{}).Error
	})
}

func (r *Repo) InsertTurn(ctx context.Context, t *Turn) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *Repo) GetTurnByID(ctx context.Context, turnID uint64) (*Turn, error) {
	var t Turn
	if err := r.db.WithContext(ctx).First(&t, "id = ?", turnID).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTurnsAsc returns all turns of a chat, oldest first.
func (r *Repo) ListTurnsAsc(ctx context.Context, chatID string) ([]Turn, error) {
	var turns []Turn
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Find(&turns).Error; err != nil {
		return nil, err
	}
	return turns, nil
}

// ListRecentTurnsDesc returns the most recent turns, newest first. beforeID
// limits the window to turns older than a given turn (used when a
// regeneration must not see the turn being regenerated or anything after).
func (r *Repo) ListRecentTurnsDesc(ctx context.Context, chatID string, limit int, beforeID uint64) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	q := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id DESC").
		Limit(limit)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var turns []Turn
	if err := q.Find(&turns).Error; err != nil {
		return nil, err
	}
	return turns, nil
}

func (r *Repo) CreateFeedback(ctx context.Context, f *Feedback) error {
	return r.db.WithContext(ctx).Create(f).Error
}

// NegativeFeedbackComments maps turn IDs to their negative-feedback
// comments, oldest first.
func (r *Repo) NegativeFeedbackComments(ctx context.Context, turnIDs []uint64) (map[uint64][]string, error) {
	out := make(map[uint64][]string)
	if len(turnIDs) == 0 {
		return out, nil
	}
	var rows []Feedback
	if err := r.db.WithContext(ctx).
		Where("turn_id IN ? AND type = ? AND comment <> ''", turnIDs, FeedbackNegative).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, f := range rows {
		out[f.TurnID] = append(out[f.TurnID], f.Comment)
	}
	return out, nil
}

// UpdateTurnInPlace overwrites a turn's response and decision fields,
// preserving its identity and creation time.
func (r *Repo) UpdateTurnInPlace(ctx context.Context, t *Turn) error {
	return r.db.WithContext(ctx).Model(&Turn{}).
		Where("id = ?", t.ID).
		UpdateColumns(map[string]any{
			"response":            t.Response,
			"response_kind":       t.ResponseKind,
			"relevance_score":     t.RelevanceScore,
			"executable":          t.Executable,
			"sql_query":           t.SQLQuery,
			"asks_about_location": t.AsksAboutLocation,
			"visualization":       t.Visualization,
		}).Error
}

// Job CRUD
func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, turnID uint64) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         JobSucceeded,
			"result_turn_id": turnID,
			"error":          nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         JobFailed,
			"error":          errMsg,
			"result_turn_id": nil,
		}).Error
}

func (r *Repo) GetJobByUserAndIdempotencyKey(ctx context.Context, userID uint64, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting tries to create a job, but if (user_id,
// idempotency_key) already exists, it returns the existing job instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}

	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
