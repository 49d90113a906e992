package handlers

import (
	"errors"
	"net/http"

	"sendcash-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// UsernameHandler username cache endpoints
type UsernameHandler struct {
	usernames *services.UsernameService
	log       *logrus.Logger
}

// NewUsernameHandler creates a new UsernameHandler
func NewUsernameHandler(usernames *services.UsernameService, log *logrus.Logger) *UsernameHandler {
	return &UsernameHandler{usernames: usernames, log: log}
}

// RegisterUsernameRequest POST /api/username/register body
type RegisterUsernameRequest struct {
	Username string `json:"username" binding:"required"`
	Address  string `json:"address" binding:"required"`
}

// GetUsernameHandler GET /api/username/:username
func (h *UsernameHandler) GetUsernameHandler(c *gin.Context) {
	resolved, err := h.usernames.ResolveUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondWithServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}

// GetUsernameByAddressHandler GET /api/username/by-address/:address
// An address without a username is a 200 with username null.
func (h *UsernameHandler) GetUsernameByAddressHandler(c *gin.Context) {
	address := c.Param("address")
	resolved, err := h.usernames.ResolveAddress(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"address": address, "username": nil})
			return
		}
		respondWithServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":   resolved.Address,
		"username":  resolved.Username,
		"isPremium": resolved.IsPremium,
	})
}

// RegisterUsernameHandler POST /api/username/register
func (h *UsernameHandler) RegisterUsernameHandler(c *gin.Context) {
	var req RegisterUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, http.StatusBadRequest, "validation_error", "username and address are required", nil)
		return
	}

	resolved, err := h.usernames.Register(c.Request.Context(), req.Username, req.Address)
	if err != nil {
		respondWithServiceError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"username": resolved.Username,
		"address":  resolved.Address,
	})
}
