package users

import (
	"errors"
	"net/http"
	"strconv"

	"storeapi/internal/domain"
	"storeapi/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(protected *gin.RouterGroup) {
	protected.GET("/users/me", h.GetMe)
	protected.PUT("/users/me", h.UpdateMe)
}

func (h *Handler) RegisterAdminRoutes(admin *gin.RouterGroup) {
	admin.PATCH("/users/:id/status", h.SetStatus)
}

func (h *Handler) GetMe(c *gin.Context) {
	userID := c.GetInt64("user_id")

	user, err := h.service.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, profilePayload(user))
}

func (h *Handler) UpdateMe(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, profilePayload(user))
}

func (h *Handler) SetStatus(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid user id")
		return
	}

	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	user, err := h.service.SetStatus(c.Request.Context(), targetID, *req.IsActive)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, profilePayload(user))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	if errors.Is(err, ErrUserNotFound) {
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong")
}

func profilePayload(user *domain.User) ProfileResponse {
	return ProfileResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      string(user.Role),
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
	}
}
