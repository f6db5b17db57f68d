package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/calllog"
	"pizza-phone-agent/backend/internal/graph"
	"pizza-phone-agent/backend/internal/order"
	apperrors "pizza-phone-agent/backend/pkg/errors"
)

type logCallRequest struct {
	CallSID     string `json:"call_sid" binding:"required"`
	ClientSlug  string `json:"client_slug" binding:"required"`
	CallDate    string `json:"call_date" binding:"required"`
	DurationSec *int   `json:"duration_sec" binding:"required"`
	Answered    bool   `json:"answered"`
	AIHandled   *bool  `json:"ai_handled"`
}

func (s *Server) handleLogCall(c *gin.Context) {
	var req logCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	call := calllog.Call{
		CallSID:     req.CallSID,
		ClientSlug:  req.ClientSlug,
		CallDate:    req.CallDate,
		DurationSec: *req.DurationSec,
		MinutesUsed: calllog.MinutesFor(*req.DurationSec),
		Answered:    req.Answered,
		AIHandled:   req.AIHandled == nil || *req.AIHandled,
	}
	if _, err := s.calls.LogCall(c.Request.Context(), call); err != nil {
		s.logger.Error("Failed to log call", zap.String("call_sid", req.CallSID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log call"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Call logged"})
}

func (s *Server) handleCallStats(c *gin.Context) {
	client := c.Query("client")
	if client == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client parameter required"})
		return
	}

	stats, err := calllog.ComputeStats(c.Request.Context(), s.calls, client, s.now())
	if err != nil {
		s.logger.Error("Failed to get stats", zap.String("client", client), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"count":    s.sessions.Count(),
		"sessions": s.sessions.List(),
	})
}

func (s *Server) handleDestroySession(c *gin.Context) {
	callID := c.Param("id")
	if err := s.sessions.Destroy(c.Request.Context(), callID); err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		s.logger.Error("Failed to destroy session", zap.String("call_id", callID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to end session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}

func (s *Server) handleCustomer(c *gin.Context) {
	if s.customers == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Customer history not configured"})
		return
	}

	phone, ok := order.NormalizePhone(c.Param("phone"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	customer, err := s.customers.CustomerHistory(c.Request.Context(), phone)
	if err != nil {
		var notFound graph.ErrCustomerNotFound
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Customer not found"})
			return
		}
		s.logger.Error("Failed to fetch customer history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch customer"})
		return
	}
	c.JSON(http.StatusOK, customer)
}
