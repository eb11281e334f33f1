package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yashwanths814/vital-sub001/db"
	"github.com/yashwanths814/vital-sub001/services"
	"github.com/yashwanths814/vital-sub001/store"
)

type EscalationHandler struct {
	engine *services.EscalationEngine
}

func NewEscalationHandler(engine *services.EscalationEngine) *EscalationHandler {
	return &EscalationHandler{engine: engine}
}

// EvaluateAutoEscalation handles POST /evaluate-auto-escalation
func (h *EscalationHandler) EvaluateAutoEscalation(c *gin.Context) {
	var req db.EvaluateAutoEscalationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "issueId is required"})
		return
	}

	result, err := h.engine.EvaluateAutoEscalation(c.Request.Context(), req.IssueID)
	if err != nil {
		h.writeError(c, req.IssueID, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RequestManualEscalation handles POST /request-manual-escalation
func (h *EscalationHandler) RequestManualEscalation(c *gin.Context) {
	var req db.RequestManualEscalationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "issueId is required"})
		return
	}

	result, err := h.engine.RequestManualEscalation(c.Request.Context(), req.IssueID, req.Reason, c.GetString("user_id"))
	if err != nil {
		h.writeError(c, req.IssueID, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetEscalation handles GET /issues/:id/escalation
func (h *EscalationHandler) GetEscalation(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Issue ID is required"})
		return
	}

	preview, err := h.engine.Preview(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

// writeError keeps waiting states (409 with outcome) apart from failures
func (h *EscalationHandler) writeError(c *gin.Context, issueID string, err error) {
	var ie *services.IneligibleError
	switch {
	case errors.As(err, &ie):
		body := gin.H{
			"escalated": false,
			"error":     ie.Kind.Error(),
			"code":      ie.Outcome,
		}
		if ie.Result != nil {
			body["message"] = ie.Result.Message
			if ie.Result.NextEligibleAt != nil {
				body["nextEligibleAt"] = ie.Result.NextEligibleAt
			}
		}
		if ie.RemainingDays > 0 {
			body["remainingDays"] = ie.RemainingDays
		}
		c.JSON(http.StatusConflict, body)

	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})

	case errors.Is(err, store.ErrUnavailable), errors.Is(err, store.ErrConflict):
		log.Printf("Escalation of issue %s failed: %v", issueID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Issue store unavailable, please retry", "details": err.Error()})

	case errors.Is(err, db.ErrMalformedIssue), errors.Is(err, services.ErrInvalidLevel):
		log.Printf("ERROR: Malformed issue %s: %v", issueID, err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Issue record is malformed", "details": err.Error()})

	default:
		log.Printf("ERROR: Escalation of issue %s failed: %v", issueID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process escalation", "details": err.Error()})
	}
}
