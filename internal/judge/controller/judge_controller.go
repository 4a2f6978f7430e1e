package controller

import (
	"context"
	"strconv"

	"codejudge/internal/judge/middleware"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/service"
	pkgerrors "codejudge/pkg/errors"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Judger is the service surface used by the controller.
type Judger interface {
	Judge(ctx context.Context, in service.JudgeInput) (*model.Submission, error)
	RunAgainstSamples(ctx context.Context, slug, language, code string) ([]model.CaseResult, error)
}

// JudgeController exposes judging over HTTP.
type JudgeController struct {
	svc Judger
}

func NewJudgeController(svc Judger) *JudgeController {
	return &JudgeController{svc: svc}
}

type codeRequest struct {
	Language string `json:"language" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

// Register mounts the judge routes on an authenticated group.
func (h *JudgeController) Register(rg *gin.RouterGroup) {
	rg.POST("/problems/:slug/submissions", h.Submit)
	rg.POST("/problems/:slug/run", h.Run)
}

// Submit judges one submission for the authenticated user.
func (h *JudgeController) Submit(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	userID := c.GetInt64(middleware.UserIDKey)
	if userID <= 0 {
		response.Error(c, pkgerrors.New(pkgerrors.Unauthorized))
		return
	}

	sub, err := h.svc.Judge(c.Request.Context(), service.JudgeInput{
		UserID:      userID,
		ProblemSlug: c.Param("slug"),
		Language:    req.Language,
		Code:        req.Code,
	})
	if err != nil {
		setRetryAfter(c, err)
		response.Error(c, err)
		return
	}
	response.Success(c, sub)
}

// Run executes code against the problem's samples without recording anything.
func (h *JudgeController) Run(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	results, err := h.svc.RunAgainstSamples(c.Request.Context(), c.Param("slug"), req.Language, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"results": results})
}

func setRetryAfter(c *gin.Context, err error) {
	if !pkgerrors.Is(err, pkgerrors.SubmitTooFrequently) {
		return
	}
	if v, ok := pkgerrors.GetError(err).Details["retry_after_seconds"].(int64); ok && v > 0 {
		c.Header("Retry-After", strconv.FormatInt(v, 10))
	}
}
