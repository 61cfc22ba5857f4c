package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/locbyt/valetd/internal/observability/context"
)

// ParseAuth copies an Authorization header, when present, into the request
// context as an opaque caller identity. Verification belongs to an external
// collaborator; absent or malformed headers are a no-op.
func ParseAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
				ctx := obscontext.WithCaller(c.Request.Context(), obscontext.Caller{
					Scheme: parts[0],
					Token:  parts[1],
				})
				c.Request = c.Request.WithContext(ctx)
			}
		}
		c.Next()
	}
}
