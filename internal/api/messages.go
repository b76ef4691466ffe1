package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rivulet-chat/rivulet/internal/bus"
	"github.com/rivulet-chat/rivulet/internal/feed"
	"github.com/rivulet-chat/rivulet/internal/store"
	apperr "github.com/rivulet-chat/rivulet/pkg/errors"
)

type createMessageRequest struct {
	Content         string `json:"content" binding:"required"`
	ParentMessageID string `json:"parent_message_id"`
	FileURL         string `json:"file_url"`
	FileName        string `json:"file_name"`
	FileType        string `json:"file_type"`
	FileSize        int64  `json:"file_size"`
}

func (h *Handler) createMessage(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	channelID := c.Param("id")

	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.requireMembership(channelID, caller); err != nil {
		respondErr(c, err)
		return
	}

	var att *store.Attachment
	if req.FileURL != "" {
		att = &store.Attachment{
			FileURL:  req.FileURL,
			FileName: req.FileName,
			FileType: req.FileType,
			FileSize: req.FileSize,
		}
	}

	msg, err := h.db.CreateMessage(channelID, caller, req.Content, req.ParentMessageID, att)
	if err != nil {
		respondErr(c, err)
		return
	}

	// One feed event per inserted row, routed to the thread scope for
	// replies and the channel scope for top-level messages.
	scope := feed.ChannelScope(channelID)
	if msg.ParentMessageID != "" {
		scope = feed.ThreadScope(msg.ParentMessageID)
	}
	h.bus.Publish(bus.Event{
		Kind:      bus.KindMessageInserted,
		Scope:     string(scope),
		Timestamp: time.Now(),
		Payload:   msg,
	})

	c.JSON(http.StatusCreated, feed.ToWire(msg))
}

func (h *Handler) listMessages(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	channelID := c.Param("id")
	if err := h.requireMembership(channelID, caller); err != nil {
		respondErr(c, err)
		return
	}

	before, _ := strconv.ParseInt(c.Query("before"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, err := h.db.ListMessages(channelID, before, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": toWireList(msgs)})
}

func (h *Handler) listThreadReplies(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	parent, err := h.db.GetMessage(c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := h.requireMembership(parent.ChannelID, caller); err != nil {
		respondErr(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	msgs, err := h.db.ListThreadReplies(parent.ID, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": toWireList(msgs)})
}

func (h *Handler) requireMembership(channelID, userID string) error {
	if _, err := h.db.GetChannel(channelID); err != nil {
		return err
	}
	ok, err := h.db.IsMember(channelID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %q is not a member of channel %q: %w",
			userID, channelID, apperr.ErrUnauthorized)
	}
	return nil
}

func toWireList(msgs []store.Message) []*feed.WireMessage {
	out := make([]*feed.WireMessage, 0, len(msgs))
	for i := range msgs {
		out = append(out, feed.ToWire(&msgs[i]))
	}
	return out
}
