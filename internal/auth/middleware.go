package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

// Verifier resolves a bearer token to a user id.
type Verifier interface {
	Verify(token string) (string, error)
}

type ctxKey struct{}

const ginUserKey = "auth.user_id"

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Middleware authenticates the request. On failure it calls onError and
// aborts; on success the user id is available via UserID.
func Middleware(v Verifier, onError func(c *gin.Context, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := v.Verify(BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			onError(c, err)
			c.Abort()
			return
		}
		c.Set(ginUserKey, userID)
		c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// UserID returns the authenticated user id of the request.
func UserID(c *gin.Context) string {
	return c.GetString(ginUserKey)
}

// WithUserID stores userID in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFromContext returns the user id stored by WithUserID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
