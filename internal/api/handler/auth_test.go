package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/myk-org/hooktrail/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testAuthConfig(t *testing.T, password string) *config.AuthConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &config.AuthConfig{
		Username:     "admin",
		PasswordHash: string(hash),
		JWTSecret:    "test-secret-key-for-unit-tests",
		TokenExpiry:  1,
	}
}

func doLogin(h *AuthHandler, body any) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/login", h.Login)

	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoginSuccess(t *testing.T) {
	h := NewAuthHandler(testAuthConfig(t, "s3cret"))

	w := doLogin(h, LoginRequest{Username: "admin", Password: "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.ExpiresAt)

	// The issued token validates back to the username.
	username, err := h.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", username)
}

func TestLoginWrongPassword(t *testing.T) {
	h := NewAuthHandler(testAuthConfig(t, "s3cret"))

	w := doLogin(h, LoginRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginWrongUsername(t *testing.T) {
	h := NewAuthHandler(testAuthConfig(t, "s3cret"))

	w := doLogin(h, LoginRequest{Username: "root", Password: "s3cret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginMissingFields(t *testing.T) {
	h := NewAuthHandler(testAuthConfig(t, "s3cret"))

	w := doLogin(h, map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginWithoutPasswordConfigured(t *testing.T) {
	h := NewAuthHandler(&config.AuthConfig{Username: "admin", JWTSecret: "x"})

	w := doLogin(h, LoginRequest{Username: "admin", Password: "anything"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	h := NewAuthHandler(testAuthConfig(t, "s3cret"))

	_, err := h.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthHandler(testAuthConfig(t, "s3cret"))
	w := doLogin(issuer, LoginRequest{Username: "admin", Password: "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	other := NewAuthHandler(&config.AuthConfig{Username: "admin", JWTSecret: "different-secret"})
	_, err := other.ValidateToken(resp.Token)
	assert.Error(t, err)
}
