package httpapi

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/cookies"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"
	bearerPrefix    = "Bearer "
	userIDKey       = "user_id"
)

// RequestLogger tags every request with an X-Request-Id (taken from the
// request or generated) and logs a summary once the handler chain returns.
func RequestLogger(l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)

		ctx := logging.WithRequestID(c.Request.Context(), rid)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000,
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
			l.Error(ctx, "request", attrs...)
			return
		}
		l.Info(ctx, "request", attrs...)
	}
}

// RequireAccessToken authenticates the access token carried in the
// access_token cookie or, for non-browser clients, an Authorization bearer
// header. The user id is stored on the gin context.
func (h *Handlers) RequireAccessToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := h.codec.Decode(c.Request, cookies.AccessTokenName)
		if !ok {
			if _, err := c.Request.Cookie(cookies.AccessTokenName); err == nil {
				writeError(c, h.logger, common.ErrInvalidAccessToken)
				return
			}
			token = strings.TrimPrefix(strings.TrimSpace(c.GetHeader("Authorization")), bearerPrefix)
		}

		id, err := h.sessions.Authenticate(c.Request.Context(), token)
		if err != nil {
			writeError(c, h.logger, err)
			return
		}

		c.Set(userIDKey, id)
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
