package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"felicity/models"
	"felicity/services"
	"felicity/utils"
)

// AccountCheck confirms that a token's account still exists and may act.
// It returns the stored role, which wins over the role in the token.
type AccountCheck func(ctx context.Context, userID int64) (models.Role, error)

// bearer extracts the token from the Authorization header. Websocket
// upgrades may pass it as ?token= since browsers cannot set headers there.
func bearer(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return h
	}
	if websocket.IsWebSocketUpgrade(c.Request) {
		return c.Query("token")
	}
	return ""
}

func abort(c *gin.Context, status int, kind services.Kind, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": kind, "message": msg})
}

func identify(c *gin.Context, check AccountCheck, token string) bool {
	userId, role, err := utils.VerifyToken(token)
	if err != nil {
		abort(c, http.StatusUnauthorized, services.KindUnauthenticated, "Not authorized.")
		return false
	}
	if check != nil {
		stored, err := check(c.Request.Context(), userId)
		if err != nil {
			switch services.KindOf(err) {
			case services.KindForbidden:
				abort(c, http.StatusForbidden, services.KindForbidden, "Account disabled.")
			case services.KindInternal:
				abort(c, http.StatusInternalServerError, services.KindInternal, "Could not authenticate. Try again later.")
			default:
				abort(c, http.StatusUnauthorized, services.KindUnauthenticated, "Not authorized.")
			}
			return false
		}
		role = string(stored)
	}
	c.Set("userId", userId)
	c.Set("role", role)
	return true
}

// Authenticate requires a valid token and puts userId and role into the
// context.
func Authenticate(check AccountCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, services.KindUnauthenticated, "Not authorized.")
			return
		}
		if identify(c, check, token) {
			c.Next()
		}
	}
}

// OptionalAuth identifies the caller when a token is present and lets
// anonymous requests through. A bad token is still rejected.
func OptionalAuth(check AccountCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.Next()
			return
		}
		if identify(c, check, token) {
			c.Next()
		}
	}
}

// RequireRole must run after Authenticate.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.Role(c.GetString("role"))
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, services.KindForbidden, "Not allowed for this role.")
	}
}

// Principal reads what Authenticate or OptionalAuth stored.
func Principal(c *gin.Context) services.Principal {
	return services.Principal{
		UserID: c.GetInt64("userId"),
		Role:   models.Role(c.GetString("role")),
	}
}
