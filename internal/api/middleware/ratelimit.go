package middleware

import (
	"net/http"

	"face-identification/internal/models"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit ограничивает частоту запросов (общий лимит на маршрут).
// rps <= 0 отключает ограничение.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}

	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error: "Слишком много запросов, попробуйте позже",
				Code:  models.CodeRateLimited,
			})
			return
		}
		c.Next()
	}
}
