package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/technova/corpusd/internal/services"
	"github.com/technova/corpusd/internal/types"
)

type AskHandler struct {
	askService      services.AskService
	feedbackService services.FeedbackService
}

func NewAskHandler(askService services.AskService, feedbackService services.FeedbackService) *AskHandler {
	return &AskHandler{askService: askService, feedbackService: feedbackService}
}

func (ah *AskHandler) Ask(c *gin.Context) {
	var req types.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	resp, err := ah.askService.Answer(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			RespondError(c, http.StatusNotFound, "user_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "ask_failed", err)
		return
	}
	if resp.Citations == nil {
		resp.Citations = []types.Citation{}
	}
	if resp.SuggestedFollowups == nil {
		resp.SuggestedFollowups = []string{}
	}
	RespondOK(c, resp)
}

type resetContextRequest struct {
	UserID      uuid.UUID `json:"user_id" binding:"required"`
	WorkspaceID uuid.UUID `json:"workspace_id" binding:"required"`
	Persona     string    `json:"persona"`
	SessionID   string    `json:"session_id"`
}

func (ah *AskHandler) ResetContext(c *gin.Context) {
	var req resetContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ah.askService.ResetContext(c.Request.Context(), req.WorkspaceID, req.UserID, req.Persona, req.SessionID)
	RespondOK(c, gin.H{"status": "ok"})
}

func (ah *AskHandler) Feedback(c *gin.Context) {
	var req types.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	row, err := ah.feedbackService.Submit(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			RespondError(c, http.StatusNotFound, "user_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "feedback_failed", err)
		return
	}
	RespondOK(c, gin.H{"id": row.ID})
}
