package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/mx-space/capture/internal/pkg/ratelimit"
	"github.com/mx-space/capture/internal/pkg/response"
)

// RateLimit admits requests through guard under class, keyed by the
// authenticated caller (client IP when anonymous). Must run after Auth.
func RateLimit(guard *ratelimit.Guard, class ratelimit.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		if guard == nil {
			c.Next()
			return
		}
		caller := CurrentUserID(c)
		if caller == "" {
			caller = "ip:" + c.ClientIP()
		}
		if err := guard.Check(c.Request.Context(), caller, class); err != nil {
			response.Error(c, err)
			return
		}
		c.Next()
	}
}
