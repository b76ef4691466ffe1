package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rivulet-chat/rivulet/internal/store"
)

type createChannelRequest struct {
	Name      string   `json:"name" binding:"required"`
	MemberIDs []string `json:"member_ids" binding:"required"`
}

type channelResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Name      string `json:"name,omitempty"`
	CreatedAt int64  `json:"created_at_unix_ms"`
}

func toChannelResponse(ch *store.Channel) channelResponse {
	return channelResponse{ID: ch.ID, Kind: ch.Kind, Name: ch.Name, CreatedAt: ch.CreatedAt}
}

func (h *Handler) createGroupChannel(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	members := req.MemberIDs
	if !contains(members, caller) {
		members = append(members, caller)
	}
	ch, err := h.db.CreateGroupChannel(req.Name, members)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, toChannelResponse(ch))
}

func (h *Handler) getChannel(c *gin.Context) {
	ch, err := h.db.GetChannel(c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, toChannelResponse(ch))
}

type joinChannelRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) joinChannel(c *gin.Context) {
	var req joinChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.db.GetChannel(c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	if _, err := h.db.GetUser(req.UserID); err != nil {
		respondErr(c, err)
		return
	}
	if err := h.db.AddMember(c.Param("id"), req.UserID); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"joined": true})
}

// leaveChannel removes a membership. For a direct channel this is the
// per-participant soft delete: the channel itself persists for the peer.
func (h *Handler) leaveChannel(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	userID := c.Param("userID")
	if userID != caller {
		c.JSON(http.StatusForbidden, gin.H{"error": "can only remove own membership"})
		return
	}
	if err := h.db.RemoveMember(c.Param("id"), userID); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true})
}

type resolveDMRequest struct {
	PeerID string `json:"peer_id" binding:"required"`
}

func (h *Handler) resolveDM(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	var req resolveDMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ch, err := h.resolver.Resolve(c.Request.Context(), caller, req.PeerID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, toChannelResponse(ch))
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
