package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createUserRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
	AvatarURL   string `json:"avatar_url"`
}

type userResponse struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	LastSeenAtMs int64  `json:"last_seen_at_unix_ms,omitempty"`
}

func (h *Handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.db.CreateUser(req.DisplayName, req.AvatarURL)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, userResponse{
		ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL,
	})
}

func (h *Handler) getUser(c *gin.Context) {
	u, err := h.db.GetUser(c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, userResponse{
		ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL,
		LastSeenAtMs: u.LastSeenAt,
	})
}

type lastSeenRequest struct {
	AtUnixMs int64 `json:"at_unix_ms" binding:"required"`
}

func (h *Handler) recordLastSeen(c *gin.Context) {
	var req lastSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.db.UpdateLastSeen(c.Param("id"), req.AtUnixMs); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": true})
}
