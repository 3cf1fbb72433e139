package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/llmproxy-dev/llmproxy/internal/api"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func runAuth(t *testing.T, checker api.KeyChecker, disable bool, header string, value string) *httptest.ResponseRecorder {
	t.Helper()
	engine := gin.New()
	engine.Use(api.AuthMiddleware(checker, disable))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareDisabledSkipsCheck(t *testing.T) {
	w := runAuth(t, api.NewStaticKeys(nil), true, "", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddlewareRejectsMissingKey(t *testing.T) {
	checker := api.NewStaticKeys([]string{"secret"})
	w := runAuth(t, checker, false, "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareAcceptsBearerToken(t *testing.T) {
	checker := api.NewStaticKeys([]string{"secret"})
	w := runAuth(t, checker, false, "Authorization", "Bearer secret")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddlewareRejectsWrongKey(t *testing.T) {
	checker := api.NewStaticKeys([]string{"secret"})
	w := runAuth(t, checker, false, "Authorization", "Bearer wrong")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewarePrefersGoogleHeaderOverBearer(t *testing.T) {
	checker := api.NewStaticKeys([]string{"good"})
	engine := gin.New()
	engine.Use(api.AuthMiddleware(checker, false))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("x-goog-api-key", "good")
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestStaticKeysAcceptsBcryptHashedEntry(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("plain-secret"), bcrypt.DefaultCost)
	require.NoError(t, err)

	checker := api.NewStaticKeys([]string{string(hash)})
	require.True(t, checker.IsValid("plain-secret"))
	require.False(t, checker.IsValid("wrong-secret"))
}

func TestStaticKeysEmptyKeyNeverValid(t *testing.T) {
	checker := api.NewStaticKeys([]string{""})
	require.False(t, checker.IsValid(""))
}
