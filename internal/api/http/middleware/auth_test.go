package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fleetops/botpanel/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func protectedRouter(adminAPIKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/protected", Auth(testSecret, adminAPIKey), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"role": c.GetString("role")})
	})
	engine.GET("/admin", Auth(testSecret, adminAPIKey), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return engine
}

func get(router *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestAuthRejectsMissingCredentials(t *testing.T) {
	router := protectedRouter("")
	rr := get(router, "/protected", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthRejectsMalformedHeader(t *testing.T) {
	router := protectedRouter("")
	rr := get(router, "/protected", map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthRejectsBadToken(t *testing.T) {
	router := protectedRouter("")
	rr := get(router, "/protected", map[string]string{"Authorization": "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthAcceptsValidToken(t *testing.T) {
	router := protectedRouter("")

	token, err := auth.GenerateToken(auth.JWTConfig{Secret: testSecret}, "u1", "alice", "operator")
	require.NoError(t, err)

	rr := get(router, "/protected", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "operator")
}

func TestAuthRejectsTokenSignedWithOtherSecret(t *testing.T) {
	router := protectedRouter("")

	token, err := auth.GenerateToken(auth.JWTConfig{Secret: "other-secret"}, "u1", "alice", "operator")
	require.NoError(t, err)

	rr := get(router, "/protected", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthAPIKey(t *testing.T) {
	router := protectedRouter("sekrit")

	t.Run("valid key acts as admin", func(t *testing.T) {
		rr := get(router, "/admin", map[string]string{"X-API-Key": "sekrit"})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		rr := get(router, "/protected", map[string]string{"X-API-Key": "nope"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("key ignored when none configured", func(t *testing.T) {
		open := protectedRouter("")
		rr := get(open, "/protected", map[string]string{"X-API-Key": "anything"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestRequireRole(t *testing.T) {
	router := protectedRouter("")

	token, err := auth.GenerateToken(auth.JWTConfig{Secret: testSecret}, "u1", "alice", "operator")
	require.NoError(t, err)

	rr := get(router, "/admin", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	adminToken, err := auth.GenerateToken(auth.JWTConfig{Secret: testSecret}, "u2", "root", "admin")
	require.NoError(t, err)

	rr = get(router, "/admin", map[string]string{"Authorization": "Bearer " + adminToken})
	assert.Equal(t, http.StatusOK, rr.Code)
}
