// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/myk-org/hooktrail/consts"
	"github.com/myk-org/hooktrail/internal/config"
	"github.com/myk-org/hooktrail/pkg/errors"
	"github.com/myk-org/hooktrail/pkg/logger"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	config *config.AuthConfig
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg *config.AuthConfig) *AuthHandler {
	return &AuthHandler{config: cfg}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Claims represents JWT claims
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    errors.ErrCodeValidation,
			"message": "Invalid request body",
		})
		return
	}

	if h.config.PasswordHash == "" {
		logger.Error("Authentication is not configured")
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    errors.ErrCodeUnauthorized,
			"message": "Authentication is not configured",
		})
		return
	}

	if req.Username != h.config.Username {
		logger.Warn("Invalid login attempt", zap.String("username", req.Username))
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    errors.ErrCodeUnauthorized,
			"message": "Invalid username or password",
		})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.config.PasswordHash), []byte(req.Password)); err != nil {
		logger.Warn("Invalid login attempt", zap.String("username", req.Username))
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    errors.ErrCodeUnauthorized,
			"message": "Invalid username or password",
		})
		return
	}

	expirationHours := h.config.TokenExpiry
	if expirationHours <= 0 {
		expirationHours = 24
	}
	expiresAt := time.Now().Add(time.Duration(expirationHours) * time.Hour)

	claims := &Claims{
		Username: req.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    consts.ServiceName,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	// JWT secret is validated at startup
	tokenString, err := token.SignedString([]byte(h.config.JWTSecret))
	if err != nil {
		logger.Error("Failed to generate JWT token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    errors.ErrCodeInternal,
			"message": "Failed to generate token",
		})
		return
	}

	logger.Info("User logged in", zap.String("username", req.Username))

	c.JSON(http.StatusOK, LoginResponse{
		Token:     tokenString,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	username, exists := c.Get("username")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    errors.ErrCodeUnauthorized,
			"message": "Not authenticated",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username": username,
	})
}

// ValidateToken validates a JWT token and returns the username.
// Implements middleware.TokenValidator.
func (h *AuthHandler) ValidateToken(tokenString string) (string, error) {
	if h.config.JWTSecret == "" {
		return "", errors.New(errors.ErrCodeJWTSecretInvalid, "JWT secret not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(h.config.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims.Username, nil
	}

	return "", jwt.ErrSignatureInvalid
}
