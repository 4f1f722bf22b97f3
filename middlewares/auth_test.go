package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"felicity/models"
	"felicity/services"
	"felicity/utils"
)

func protected(check AccountCheck, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append([]gin.HandlerFunc{Authenticate(check)}, extra...)
	chain = append(chain, func(c *gin.Context) {
		p := Principal(c)
		c.JSON(http.StatusOK, gin.H{"userId": p.UserID, "role": p.Role})
	})
	r.GET("/p", chain...)
	return r
}

func get(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate_MissingToken(t *testing.T) {
	w := get(protected(nil), "/p", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"unauthenticated"`)
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	w := get(protected(nil), "/p", "Bearer this-is-not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticate_ValidToken(t *testing.T) {
	token, err := utils.GenerateToken(42, "organizer")
	require.NoError(t, err)

	w := get(protected(nil), "/p", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":42,"role":"organizer"}`, w.Body.String())
}

func TestAuthenticate_StoredRoleWins(t *testing.T) {
	token, _ := utils.GenerateToken(42, "admin")
	check := func(context.Context, int64) (models.Role, error) { return models.RoleParticipant, nil }

	w := get(protected(check), "/p", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"participant"`)
}

func TestAuthenticate_DisabledAccount(t *testing.T) {
	token, _ := utils.GenerateToken(7, "organizer")
	check := func(context.Context, int64) (models.Role, error) {
		return "", services.Forbidden("account disabled")
	}

	w := get(protected(check), "/p", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthenticate_DeletedAccount(t *testing.T) {
	token, _ := utils.GenerateToken(7, "organizer")
	check := func(context.Context, int64) (models.Role, error) {
		return "", services.Unauthenticated("account no longer exists")
	}

	w := get(protected(check), "/p", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	r := protected(nil, RequireRole(models.RoleAdmin))

	participant, _ := utils.GenerateToken(1, "participant")
	assert.Equal(t, http.StatusForbidden, get(r, "/p", "Bearer "+participant).Code)

	admin, _ := utils.GenerateToken(2, "admin")
	assert.Equal(t, http.StatusOK, get(r, "/p", "Bearer "+admin).Code)
}

func TestOptionalAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/o", OptionalAuth(nil), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"anonymous": Principal(c).Anonymous()})
	})

	w := get(r, "/o", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"anonymous":true}`, w.Body.String())

	token, _ := utils.GenerateToken(3, "participant")
	w = get(r, "/o", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"anonymous":false}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "/o", "Bearer junk").Code)
}
