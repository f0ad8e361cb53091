package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if c.Request.ContentLength == 0 {
				c.Next()
				return
			}

			ct := c.GetHeader("Content-Type")
			// allow "application/json; charset=utf-8"; CSV uploads carry text/csv
			if !strings.HasPrefix(strings.ToLower(ct), "application/json") &&
				!strings.HasPrefix(strings.ToLower(ct), "text/csv") {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
					"success": false,
					"code":    "unsupported_media_type",
					"message": "Content-Type must be application/json or text/csv",
				})
				return
			}
		}
		c.Next()
	}
}
