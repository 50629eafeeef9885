package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS добавляет заголовки CORS к ответам.
// allowOrigin "*" (или пусто) открывает API для всех без credentials,
// конкретный origin разрешает и credentials.
func CORS(allowOrigin string) gin.HandlerFunc {
	if allowOrigin == "" {
		allowOrigin = "*"
	}

	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", allowOrigin)
		if allowOrigin != "*" {
			header.Set("Access-Control-Allow-Credentials", "true")
			header.Add("Vary", "Origin")
		}
		header.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		header.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		// Preflight
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Recovery восстанавливает приложение после паники
func Recovery() gin.HandlerFunc {
	return gin.Recovery()
}
