package api

import (
	"net/http"

	"fightzone/backend/internal/models"
	"fightzone/backend/internal/service"
	"fightzone/backend/pkg/jwt"
	"fightzone/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	service *service.UserService
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *service.UserService, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

// Signup handles user registration
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Error binding JSON for signup", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	if req.Password != req.PasswordConfirm {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Passwords do not match"})
		return
	}

	user, token, err := h.service.CreateUser(&req)
	if err != nil {
		switch err {
		case service.ErrUserAlreadyExists:
			c.JSON(http.StatusConflict, gin.H{"error": "A user with this email already exists"})
		default:
			h.logger.Error("Error creating user", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user account"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Login handles user authentication
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Error binding JSON for login", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	user, token, err := h.service.Login(&req)
	if err != nil {
		switch err {
		case service.ErrInvalidCredentials:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		default:
			h.logger.Error("Error during login", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred during login"})
		}
		return
	}

	h.logger.Info("User logged in",
		"userID", user.ID,
		"email", user.Email,
	)

	c.JSON(http.StatusOK, gin.H{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Me returns the current authenticated user
func (h *AuthHandler) Me(c *gin.Context) {
	userID, exists := c.Get("userId")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	user, err := h.service.GetUserByID(userID.(uint))
	if err != nil {
		switch err {
		case service.ErrUserNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			h.logger.Error("Error getting user", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		}
		return
	}

	c.JSON(http.StatusOK, user.ToResponse())
}

// Logout revokes the current session token
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, exists := c.Get("claims")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	if err := h.service.Logout(c.Request.Context(), claims.(*jwt.JWTClaims).ID); err != nil {
		h.logger.Error("Error revoking token", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log out"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// RequestPasswordReset issues a reset token for the given email. The
// response is the same whether or not the account exists.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req models.ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	if err := h.service.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.logger.Error("Error requesting password reset", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process reset request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "If the account exists, a reset link has been sent"})
}

// ResetPassword consumes a reset token and sets a new password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.PasswordUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		switch err {
		case service.ErrInvalidResetToken:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset token"})
		case service.ErrUserNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			h.logger.Error("Error resetting password", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// DiscordLogin redirects the browser into the Discord OAuth flow
func (h *AuthHandler) DiscordLogin(c *gin.Context) {
	url, err := h.service.DiscordAuthURL(c.Request.Context())
	if err != nil {
		h.logger.Error("Error starting discord login", "error", err.Error())
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Discord login is unavailable"})
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, url)
}

// DiscordCallback completes the Discord OAuth flow and issues a session token
func (h *AuthHandler) DiscordCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
		return
	}

	user, token, err := h.service.HandleDiscordCallback(c.Request.Context(), code, state)
	if err != nil {
		switch err {
		case service.ErrInvalidOAuthState:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OAuth state"})
		default:
			h.logger.Error("Error completing discord login", "error", err.Error())
			c.JSON(http.StatusBadGateway, gin.H{"error": "Discord login failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":  user.ToResponse(),
		"token": token,
	})
}
