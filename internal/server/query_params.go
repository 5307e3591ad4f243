package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	rewarddomain "github.com/smallbiznis/loyalty/internal/reward/domain"
	"github.com/smallbiznis/loyalty/pkg/db/pagination"
)

func parseRewardID(value string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return 0, rewarddomain.ErrInvalidID
	}
	return parsed, nil
}

func parseLimit(c *gin.Context, def int) (int, error) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, newValidationError("limit", "invalid_limit", "limit must be a non-negative integer")
	}
	return limit, nil
}

func bindPagination(c *gin.Context) (pagination.Pagination, error) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		return pagination.Pagination{}, newValidationError("limit", "invalid_limit", "limit must be a non-negative integer")
	}
	if page.PageSize < 0 {
		return pagination.Pagination{}, newValidationError("limit", "invalid_limit", "limit must be a non-negative integer")
	}
	return page, nil
}
