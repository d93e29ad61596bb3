package chat

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/datachat/datachat/internal/ai"
	"github.com/datachat/datachat/internal/analytics"
	"github.com/datachat/datachat/internal/apperr"
	"github.com/datachat/datachat/internal/fewshot"
	"github.com/datachat/datachat/internal/render"
	"github.com/datachat/datachat/internal/synthesis"
)

// Service orchestrates one question end to end: validate, synthesize,
// execute, render, persist. It holds no per-request state; two concurrent
// questions in the same chat see whatever turn history is committed when
// they read it (callers serialize per chat if they need ordering).
type Service struct {
	repo              *Repo
	synth             *synthesis.Synthesizer
	renderer          *render.Renderer
	executor          analytics.Executor
	examples          *fewshot.Store
	contextWindowSize int
}

func NewService(repo *Repo, synth *synthesis.Synthesizer, renderer *render.Renderer, executor analytics.Executor, examples *fewshot.Store, contextWindowSize int) *Service {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = 20
	}
	return &Service{
		repo:              repo,
		synth:             synth,
		renderer:          renderer,
		executor:          executor,
		examples:          examples,
		contextWindowSize: contextWindowSize,
	}
}

func (s *Service) CreateChat(ctx context.Context, userID uint64, title string) (*Chat, error) {
	if strings.TrimSpace(title) == "" {
		return nil, &apperr.Validation{Msg: "title is required"}
	}
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	c := &Chat{ID: id, Title: title, UserID: userID}
	if err := s.repo.CreateChat(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListChats(ctx context.Context, userID uint64) ([]Chat, error) {
	return s.repo.ListChatsByUser(ctx, userID)
}

// ownedChat loads the chat and verifies ownership; a foreign chat looks
// like a missing one.
func (s *Service) ownedChat(ctx context.Context, userID uint64, chatID string) (*Chat, error) {
	c, err := s.repo.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (s *Service) ListTurns(ctx context.Context, userID uint64, chatID string) ([]Turn, error) {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.repo.ListTurnsAsc(ctx, chatID)
}

func (s *Service) DeleteChat(ctx context.Context, userID uint64, chatID string) error {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return err
	}
	return s.repo.DeleteChatCascade(ctx, chatID)
}

// history builds both model contexts from the chat's recent turns: the
// synthesis transcript (question + decision pairs, negative-feedback
// comments attached) and the prose history (question + rendered response
// pairs). beforeID > 0 restricts the window to turns older than that turn.
func (s *Service) history(ctx context.Context, chatID string, beforeID uint64) (synthesis.Transcript, []ai.Message, error) {
	recentDesc, err := s.repo.ListRecentTurnsDesc(ctx, chatID, s.contextWindowSize, beforeID)
	if err != nil {
		return nil, nil, err
	}

	// reverse to ASC (oldest -> newest)
	turns := make([]Turn, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		turns = append(turns, recentDesc[i])
	}

	ids := make([]uint64, 0, len(turns))
	for _, t := range turns {
		ids = append(ids, t.ID)
	}
	comments, err := s.repo.NegativeFeedbackComments(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	transcript := make(synthesis.Transcript, 0, len(turns))
	prose := make([]ai.Message, 0, 2*len(turns))
	for _, t := range turns {
		transcript = append(transcript, synthesis.Turn{
			Question:         t.Question,
			FeedbackComments: comments[t.ID],
			Decision:         t.Decision(),
		})
		prose = append(prose,
			ai.Message{Role: "user", Content: t.Question},
			ai.Message{Role: "assistant", Content: t.Response},
		)
	}
	return transcript, prose, nil
}

// Ask runs the full pipeline for one question and persists the resulting
// turn. Rejections (safety, relevance) surface as typed errors and persist
// nothing.
func (s *Service) Ask(ctx context.Context, userID uint64, chatID, question string) (*Turn, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &apperr.Validation{Msg: "question is required"}
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, &apperr.Validation{Msg: "chat_id is required"}
	}
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return nil, err
	}

	transcript, prose, err := s.history(ctx, chatID, 0)
	if err != nil {
		return nil, err
	}

	decision, err := s.synth.Synthesize(ctx, question, userID, transcript, "")
	if err != nil {
		return nil, err
	}

	result, err := s.executor.Query(ctx, decision.SQL)
	if err != nil {
		return nil, err
	}

	rendered, err := s.renderer.Render(ctx, question, decision, result, prose)
	if err != nil {
		return nil, err
	}

	turn := &Turn{
		ChatID:       chatID,
		UserID:       userID,
		Question:     question,
		Response:     rendered.Body,
		ResponseKind: string(rendered.Kind),
	}
	turn.SetDecision(decision)
	if err := s.repo.InsertTurn(ctx, turn); err != nil {
		return nil, err
	}
	return turn, nil
}

// RecordFeedback stores the feedback, then applies its side effect:
// positive promotes the turn's (question, decision) pair into the user's
// example pool; negative with a comment regenerates the turn in place.
// The possibly-updated turn is returned.
func (s *Service) RecordFeedback(ctx context.Context, userID uint64, turnID uint64, ftype FeedbackType, comment string) (*Turn, error) {
	switch ftype {
	case FeedbackPositive, FeedbackNegative, FeedbackNone:
	default:
		return nil, &apperr.Validation{Msg: "feedback type must be positive, negative or none"}
	}

	turn, err := s.repo.GetTurnByID(ctx, turnID)
	if err != nil {
		return nil, err
	}
	chat, err := s.ownedChat(ctx, userID, turn.ChatID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateFeedback(ctx, &Feedback{
		TurnID:  turnID,
		Type:    ftype,
		Comment: comment,
	}); err != nil {
		return nil, err
	}

	switch ftype {
	case FeedbackPositive:
		// Promoted examples belong to the chat's owner and outlive the
		// chat.
		if err := s.examples.Add(ctx, fewshot.UserScope(chat.UserID), turn.Question, turn.Decision()); err != nil {
			return nil, err
		}
	case FeedbackNegative:
		if strings.TrimSpace(comment) != "" {
			return s.regenerate(ctx, turn, comment)
		}
	}
	return turn, nil
}

// regenerate re-runs the pipeline for an existing turn with the feedback
// comment as corrective guidance, overwriting the stored response in place.
// Turn identity and creation time are preserved.
func (s *Service) regenerate(ctx context.Context, turn *Turn, comment string) (*Turn, error) {
	transcript, prose, err := s.history(ctx, turn.ChatID, turn.ID)
	if err != nil {
		return nil, err
	}

	decision, err := s.synth.Synthesize(ctx, turn.Question, turn.UserID, transcript, comment)
	if err != nil {
		return nil, err
	}

	result, err := s.executor.Query(ctx, decision.SQL)
	if err != nil {
		return nil, err
	}

	rendered, err := s.renderer.Render(ctx, turn.Question, decision, result, prose)
	if err != nil {
		return nil, err
	}

	turn.Response = rendered.Body
	turn.ResponseKind = string(rendered.Kind)
	turn.SetDecision(decision)
	if err := s.repo.UpdateTurnInPlace(ctx, turn); err != nil {
		return nil, err
	}
	return turn, nil
}

// CreateAskJob queues an asynchronous ask. Idempotency keys dedupe
// retried submissions.
func (s *Service) CreateAskJob(ctx context.Context, userID uint64, chatID, question string, idempotencyKey *string) (*Job, bool, error) {
	if strings.TrimSpace(question) == "" {
		return nil, false, &apperr.Validation{Msg: "question is required"}
	}
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return nil, false, err
	}
	id, err := NewID()
	if err != nil {
		return nil, false, err
	}
	job := &Job{
		ID:             id,
		UserID:         userID,
		ChatID:         chatID,
		Question:       question,
		IdempotencyKey: idempotencyKey,
		Status:         JobQueued,
	}
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, userID uint64, jobID string) (*Job, error) {
	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return job, nil
}

// RunJob executes one queued ask job; called by the worker.
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == JobSucceeded || job.Status == JobFailed {
		return nil
	}
	if err := s.repo.UpdateJobStatusRunning(ctx, jobID); err != nil {
		return err
	}

	turn, err := s.Ask(ctx, job.UserID, job.ChatID, job.Question)
	if err != nil {
		// Rejections are terminal outcomes, not retryable failures.
		log.WithField("job", jobID).Infof("ask job failed: %v", err)
		if markErr := s.repo.MarkJobFailed(ctx, jobID, err.Error()); markErr != nil {
			return markErr
		}
		var provErr *apperr.Provider
		if errors.As(err, &provErr) {
			return err // let the queue retry provider outages
		}
		return nil
	}
	return s.repo.MarkJobSucceeded(ctx, jobID, turn.ID)
}
