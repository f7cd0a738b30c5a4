package auth

import (
	"errors"
	"net/http"
	"strconv"

	"storeapi/internal/pkg/response"
	"storeapi/internal/token"

	"github.com/gin-gonic/gin"
)

// Handler manages all HTTP interactions for authentication
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterPublicRoutes(v1 *gin.RouterGroup) {
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}
}

func (h *Handler) RegisterProtectedRoutes(protected *gin.RouterGroup) {
	authGroup := protected.Group("/auth")
	{
		authGroup.POST("/logout", h.Logout)
		authGroup.GET("/sessions", h.ListSessions)
		authGroup.DELETE("/sessions/:fingerprint", h.RevokeSession)
		authGroup.DELETE("/sessions", h.RevokeAllSessions)
	}
}

func deviceFromRequest(c *gin.Context) token.DeviceInfo {
	return token.DeviceInfo{
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	result, err := h.service.Register(c.Request.Context(), req, deviceFromRequest(c))
	if err != nil {
		if errors.Is(err, ErrEmailAlreadyExists) {
			response.Error(c, http.StatusConflict, "EMAIL_EXISTS", "This email is already registered")
			return
		}
		response.Error(c, http.StatusInternalServerError, "REGISTRATION_FAILED", "Failed to register user")
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"user":   userPayload(result),
		"tokens": result.Pair,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	result, err := h.service.Login(c.Request.Context(), req, deviceFromRequest(c))
	if err != nil {
		var locked *AccountLockedError
		switch {
		case errors.As(err, &locked):
			c.Header("Retry-After", strconv.Itoa(int(locked.RetryAfter.Seconds())))
			response.Error(c, http.StatusTooManyRequests, "ACCOUNT_LOCKED",
				"Too many failed attempts, account temporarily locked")
		case errors.Is(err, ErrInvalidCredentials):
			response.Error(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Email or password is incorrect")
		case errors.Is(err, ErrAccountDisabled):
			response.Error(c, http.StatusForbidden, "FORBIDDEN", "Account is disabled")
		default:
			response.Error(c, http.StatusInternalServerError, "LOGIN_FAILED", "Failed to login")
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user":   userPayload(result),
		"tokens": result.Pair,
	})
}

func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	pair, err := h.service.Refresh(c.Request.Context(), req.RefreshToken, deviceFromRequest(c))
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			response.Error(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "Refresh token has expired")
		case errors.Is(err, token.ErrRefreshReused):
			response.Error(c, http.StatusUnauthorized, "TOKEN_REUSED", "Refresh token was already used")
		default:
			response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid refresh token")
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tokens": pair})
}

func (h *Handler) Logout(c *gin.Context) {
	var req LogoutRequest
	// body is optional: logout without a refresh token still works
	_ = c.ShouldBindJSON(&req)

	userID := c.GetInt64("user_id")
	accessToken := c.GetString("access_token")

	if err := h.service.Logout(c.Request.Context(), userID, accessToken, req.RefreshToken, deviceFromRequest(c)); err != nil {
		response.Error(c, http.StatusInternalServerError, "LOGOUT_FAILED", "Failed to logout")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handler) ListSessions(c *gin.Context) {
	userID := c.GetInt64("user_id")

	sessions, err := h.service.ListSessions(c.Request.Context(), userID, c.GetString("fingerprint"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "SESSIONS_FAILED", "Failed to list sessions")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) RevokeSession(c *gin.Context) {
	userID := c.GetInt64("user_id")
	fingerprint := c.Param("fingerprint")

	if !h.service.RevokeSession(c.Request.Context(), userID, fingerprint) {
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Session not found")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Session revoked"})
}

func (h *Handler) RevokeAllSessions(c *gin.Context) {
	userID := c.GetInt64("user_id")

	count := h.service.RevokeAllSessions(c.Request.Context(), userID)

	response.Success(c, http.StatusOK, gin.H{"revoked": count})
}

func userPayload(result *LoginResult) gin.H {
	return gin.H{
		"id":    result.User.ID,
		"email": result.User.Email,
		"name":  result.User.Name,
		"role":  result.User.Role,
	}
}
