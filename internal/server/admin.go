package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	loyaltydomain "github.com/smallbiznis/loyalty/internal/loyalty/domain"
	rewarddomain "github.com/smallbiznis/loyalty/internal/reward/domain"
)

type adjustmentRequest struct {
	Points         int64  `json:"points"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) AdminListRewards(c *gin.Context) {
	items, err := s.rewards.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []rewarddomain.Reward{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) AdminCreateReward(c *gin.Context) {
	var req rewarddomain.CreateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	item, err := s.rewards.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) AdminUpdateReward(c *gin.Context) {
	id, err := parseRewardID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req rewarddomain.UpdateRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	item, err := s.rewards.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) AdminExpireReward(c *gin.Context) {
	id, err := parseRewardID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	item, err := s.rewards.Expire(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) AdminGetClaim(c *gin.Context) {
	claim, err := s.claims.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": claim})
}

// AdminRedeemClaim marks a redemption code as used at the counter.
func (s *Server) AdminRedeemClaim(c *gin.Context) {
	claim, err := s.claims.MarkUsed(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": claim})
}

func (s *Server) AdminAdjust(c *gin.Context) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}

	result, err := s.loyalty.Adjust(c.Request.Context(), loyaltydomain.Adjustment{
		UserID:         c.Param("userId"),
		Points:         req.Points,
		Reason:         req.Reason,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": result})
}

func (s *Server) AdminListHistory(c *gin.Context) {
	s.listHistory(c, c.Param("userId"))
}

func (s *Server) AdminVerifyBalance(c *gin.Context) {
	result, err := s.loyalty.VerifyBalance(c.Request.Context(), c.Param("userId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) AdminReconcile(c *gin.Context) {
	result, err := s.loyalty.Reconcile(c.Request.Context(), c.Param("userId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
