package handlers

import (
	"net/http"

	"auction-marketplace/internal/api/dto"
	"auction-marketplace/internal/services"
	"auction-marketplace/pkg/logger"

	"github.com/labstack/echo/v4"
)

type UserHandler struct {
	users *services.UserService
	log   logger.Logger
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func NewUserHandler(users *services.UserService, log logger.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

func (h *UserHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}

	user, err := h.users.Register(c.Request().Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errorStatus(err) == http.StatusInternalServerError {
			h.log.Error("Failed to register user", "username", req.Username, "error", err)
		}
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, dto.NewUserResponse(user))
}

func (h *UserHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}

	token, user, err := h.users.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, dto.SessionResponse{Token: token, User: dto.NewUserResponse(user)})
}
