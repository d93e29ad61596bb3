package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/datachat/datachat/internal/common"
	"github.com/datachat/datachat/internal/fewshot"
	"github.com/datachat/datachat/internal/synthesis"
)

// exampleScope resolves the scope query param: "global" or the caller's
// own pool (the default).
func exampleScope(c *gin.Context, uid uint64) fewshot.Scope {
	if c.Query("scope") == "global" {
		return fewshot.ScopeGlobal
	}
	return fewshot.UserScope(uid)
}

type addExampleReq struct {
	Question string             `json:"question" binding:"required"`
	Decision synthesis.Decision `json:"decision" binding:"required"`
}

func (h *Handler) AddExample(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req addExampleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	scope := exampleScope(c, uid)
	if err := h.Examples.Add(c.Request.Context(), scope, req.Question, req.Decision); err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, gin.H{"id": fewshot.ContentID(req.Question), "scope": scope})
}

func (h *Handler) ListExamples(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	recs, err := h.Examples.List(c.Request.Context(), exampleScope(c, uid))
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, gin.H{"examples": recs})
}

func (h *Handler) DeleteExample(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	if err := h.Examples.Delete(c.Request.Context(), exampleScope(c, uid), c.Param("id")); err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) DeleteAllExamples(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	if err := h.Examples.DeleteAll(c.Request.Context(), exampleScope(c, uid)); err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, nil)
}
