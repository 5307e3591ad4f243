package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	loyaltydomain "github.com/smallbiznis/loyalty/internal/loyalty/domain"
)

type userAuthenticatedRequest struct {
	UserID    string   `json:"user_id"`
	GuestRefs []string `json:"guest_refs"`
}

func (s *Server) OrderCompleted(c *gin.Context) {
	var req loyaltydomain.OrderCompleted
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.loyalty.OnOrderCompleted(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == loyaltydomain.CreditDeferred {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"data": result})
}

func (s *Server) UserAuthenticated(c *gin.Context) {
	var req userAuthenticatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.loyalty.OnUserAuthenticated(c.Request.Context(), req.UserID, req.GuestRefs...)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
