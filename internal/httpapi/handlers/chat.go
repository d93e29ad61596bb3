package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/datachat/datachat/internal/apperr"
	"github.com/datachat/datachat/internal/chat"
	"github.com/datachat/datachat/internal/common"
	"github.com/datachat/datachat/internal/httpapi/middleware"
)

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

// failFromErr maps pipeline errors onto the response envelope. Safety and
// relevance rejections are terminal outcomes with user-facing messages;
// everything else is generic.
func failFromErr(c *gin.Context, err error) {
	var (
		valErr  *apperr.Validation
		safeErr *apperr.SafetyRejection
		relErr  *apperr.RelevanceRejection
		execErr *apperr.Execution
		provErr *apperr.Provider
	)
	switch {
	case errors.As(err, &valErr):
		common.Fail(c, http.StatusBadRequest, 10001, valErr.Msg)
	case errors.As(err, &safeErr):
		common.Fail(c, http.StatusForbidden, 40301, "I can't help with that question.")
	case errors.As(err, &relErr):
		common.Fail(c, http.StatusForbidden, 40302, "That question doesn't seem related to the data I can answer about.")
	case errors.As(err, &execErr):
		log.Errorf("query execution: %v", err)
		common.Fail(c, http.StatusInternalServerError, 50010, "failed to run the query")
	case errors.As(err, &provErr):
		log.Errorf("provider %s: %v", provErr.Op, err)
		common.Fail(c, http.StatusBadGateway, 50210, "an upstream service is unavailable")
	case errors.Is(err, gorm.ErrRecordNotFound):
		common.Fail(c, http.StatusNotFound, 40400, "not found")
	default:
		log.Errorf("unhandled: %v", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

type createChatReq struct {
	Title string `json:"title" binding:"required"`
}

func (h *Handler) CreateChat(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	chatRow, err := h.ChatSvc.CreateChat(c.Request.Context(), uid, req.Title)
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, gin.H{"chat": chatRow})
}

func (h *Handler) ListChats(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	chats, err := h.ChatSvc.ListChats(c.Request.Context(), uid)
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, gin.H{"chats": chats})
}

func (h *Handler) ListTurns(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	turns, err := h.ChatSvc.ListTurns(c.Request.Context(), uid, c.Param("chat_id"))
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, gin.H{"turns": turns})
}

func (h *Handler) DeleteChat(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	if err := h.ChatSvc.DeleteChat(c.Request.Context(), uid, c.Param("chat_id")); err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, nil)
}

type askReq struct {
	ChatID   string `json:"chat_id" binding:"required"`
	Question string `json:"question" binding:"required"`
}

func (h *Handler) Ask(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req askReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	turn, err := h.ChatSvc.Ask(c.Request.Context(), uid, req.ChatID, req.Question)
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, gin.H{"turn": turn})
}

// AskAsync queues the question as a job and returns immediately. An
// Idempotency-Key header dedupes client retries.
func (h *Handler) AskAsync(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req askReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	job, created, err := h.ChatSvc.CreateAskJob(c.Request.Context(), uid, req.ChatID, req.Question, idempoKeyPtr)
	if err != nil {
		failFromErr(c, err)
		return
	}

	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), job.ID); err != nil {
			log.Errorf("publish job %s: %v", job.ID, err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}
	common.OK(c, gin.H{"job_id": job.ID, "status": job.Status})
}

func (h *Handler) GetAskJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	job, err := h.ChatSvc.GetJob(c.Request.Context(), uid, c.Param("job_id"))
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, gin.H{"job": job})
}

type feedbackReq struct {
	Type    string `json:"type" binding:"required"`
	Comment string `json:"comment"`
}

func (h *Handler) TurnFeedback(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	turnID, err := strconv.ParseUint(c.Param("turn_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid turn id")
		return
	}

	var req feedbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	turn, err := h.ChatSvc.RecordFeedback(c.Request.Context(), uid, turnID, chat.FeedbackType(req.Type), req.Comment)
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, gin.H{"turn": turn})
}
