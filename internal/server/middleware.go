package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/loyalty/internal/observability/logger"
	"go.uber.org/zap"
)

// ClaimRateLimit throttles claim bursts per user before the claim transaction.
func (s *Server) ClaimRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		res, err := s.limiter.Allow(c.Request.Context(), currentUserID(c))
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("claim rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
