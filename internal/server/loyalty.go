package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	claimdomain "github.com/smallbiznis/loyalty/internal/claim/domain"
	ledgerdomain "github.com/smallbiznis/loyalty/internal/ledger/domain"
	"github.com/smallbiznis/loyalty/internal/providers/pdf"
)

type balanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

func (s *Server) GetBalance(c *gin.Context) {
	userID := currentUserID(c)
	points, err := s.loyalty.GetBalance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": balanceResponse{UserID: userID, Balance: points}})
}

func (s *Server) ListHistory(c *gin.Context) {
	s.listHistory(c, currentUserID(c))
}

func (s *Server) listHistory(c *gin.Context, userID string) {
	page, err := bindPagination(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp, err := s.loyalty.ListHistory(c.Request.Context(), ledgerdomain.ListRequest{
		UserID:    userID,
		Limit:     page.PageSize,
		PageToken: page.PageToken,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	entries := resp.Entries
	if entries == nil {
		entries = []ledgerdomain.LedgerEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": resp.PageInfo})
}

func (s *Server) GetDailyClaims(c *gin.Context) {
	status, err := s.loyalty.GetDailyClaimStatus(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": status})
}

func (s *Server) ListAvailableRewards(c *gin.Context) {
	items, err := s.loyalty.ListAvailableRewards(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ClaimReward(c *gin.Context) {
	rewardID, err := parseRewardID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	result, err := s.loyalty.ClaimReward(c.Request.Context(), currentUserID(c), rewardID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListClaims(c *gin.Context) {
	limit, err := parseLimit(c, 50)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items, err := s.loyalty.ListClaims(c.Request.Context(), currentUserID(c), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []claimdomain.ClaimedReward{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// DownloadVoucher renders a claim the caller owns as a PDF.
func (s *Server) DownloadVoucher(c *gin.Context) {
	ctx := c.Request.Context()
	claim, err := s.claims.GetByCode(ctx, c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if claim.UserID != currentUserID(c) {
		AbortWithError(c, claimdomain.ErrNotFound)
		return
	}
	reward, err := s.rewards.Get(ctx, nil, claim.RewardID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	voucher := pdf.Voucher{
		RewardName:     reward.Name,
		RewardType:     string(reward.Type),
		RedemptionCode: claim.RedemptionCode,
		UserID:         claim.UserID,
		PointsSpent:    reward.PointsRequired,
		ClaimedAt:      claim.ClaimedAt,
		UsedAt:         claim.UsedAt,
	}
	if s.loyaltyCfg != nil {
		voucher.Location = s.loyaltyCfg.Get().Location()
	}
	doc, err := s.vouchers.GenerateVoucher(ctx, voucher)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	body, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := "voucher-" + strings.ToLower(claim.RedemptionCode) + ".pdf"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", body)
}
