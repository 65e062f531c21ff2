package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quillforge/engine/internal/common"
	"github.com/quillforge/engine/internal/logger"
)

// Recovery turns handler panics into the standard error envelope instead of
// a dropped connection.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("handler panic", "path", c.FullPath(), "panic", r)
				common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
