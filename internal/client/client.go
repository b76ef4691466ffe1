package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rivulet-chat/rivulet/internal/feed"
	"github.com/rivulet-chat/rivulet/internal/store"
	apperr "github.com/rivulet-chat/rivulet/pkg/errors"
	"go.uber.org/zap"
)

// Client talks to a rivuletd daemon: the persistence and user-directory
// collaborators over HTTP, and the change feed over websocket. Construct
// once per session and share; it is safe for concurrent use.
type Client struct {
	baseURL string
	userID  string
	httpc   *http.Client
	logger  *zap.Logger
}

// New creates a client for the daemon at baseURL, acting as userID.
func New(baseURL, userID string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// UserID returns the identity this client acts as.
func (c *Client) UserID() string { return c.userID }

// DialFeed opens the websocket change-feed connection.
func (c *Client) DialFeed(ctx context.Context) (*feed.WSTransport, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) +
		"/ws?user_id=" + url.QueryEscape(c.userID)
	return feed.DialWS(ctx, wsURL, c.logger)
}

// CreateMessage persists a message and returns the confirmed record.
func (c *Client) CreateMessage(ctx context.Context, channelID, content, parentMessageID string, att *store.Attachment) (*store.Message, error) {
	body := map[string]any{
		"content":           content,
		"parent_message_id": parentMessageID,
	}
	if att != nil {
		body["file_url"] = att.FileURL
		body["file_name"] = att.FileName
		body["file_type"] = att.FileType
		body["file_size"] = att.FileSize
	}
	var w feed.WireMessage
	if err := c.do(ctx, http.MethodPost, "/api/channels/"+channelID+"/messages", body, &w); err != nil {
		return nil, err
	}
	return feed.FromWire(&w), nil
}

type messagesResponse struct {
	Messages []*feed.WireMessage `json:"messages"`
}

// ListMessages returns a channel's top-level messages, newest first.
func (c *Client) ListMessages(ctx context.Context, channelID string, beforeMs int64, limit int) ([]store.Message, error) {
	path := fmt.Sprintf("/api/channels/%s/messages?before=%d&limit=%d", channelID, beforeMs, limit)
	var resp messagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return fromWireList(resp.Messages), nil
}

// ListThreadReplies returns a thread's replies, oldest first.
func (c *Client) ListThreadReplies(ctx context.Context, parentMessageID string, limit int) ([]store.Message, error) {
	path := "/api/messages/" + parentMessageID + "/replies?limit=" + strconv.Itoa(limit)
	var resp messagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return fromWireList(resp.Messages), nil
}

type channelPayload struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at_unix_ms"`
}

func (p *channelPayload) toChannel() *store.Channel {
	return &store.Channel{ID: p.ID, Kind: p.Kind, Name: p.Name, CreatedAt: p.CreatedAt}
}

// ResolveDM finds-or-creates the direct channel with peerID.
func (c *Client) ResolveDM(ctx context.Context, peerID string) (*store.Channel, error) {
	var p channelPayload
	if err := c.do(ctx, http.MethodPost, "/api/dm", map[string]any{"peer_id": peerID}, &p); err != nil {
		return nil, err
	}
	return p.toChannel(), nil
}

// CreateGroupChannel creates a named channel with the given members.
func (c *Client) CreateGroupChannel(ctx context.Context, name string, memberIDs []string) (*store.Channel, error) {
	var p channelPayload
	body := map[string]any{"name": name, "member_ids": memberIDs}
	if err := c.do(ctx, http.MethodPost, "/api/channels", body, &p); err != nil {
		return nil, err
	}
	return p.toChannel(), nil
}

// LeaveChannel removes the caller's own membership.
func (c *Client) LeaveChannel(ctx context.Context, channelID string) error {
	return c.do(ctx, http.MethodDelete, "/api/channels/"+channelID+"/members/"+c.userID, nil, nil)
}

type userPayload struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	AvatarURL    string `json:"avatar_url"`
	LastSeenAtMs int64  `json:"last_seen_at_unix_ms"`
}

// GetUser fetches a directory profile.
func (c *Client) GetUser(ctx context.Context, id string) (*store.User, error) {
	var p userPayload
	if err := c.do(ctx, http.MethodGet, "/api/users/"+id, nil, &p); err != nil {
		return nil, err
	}
	return &store.User{
		ID: p.ID, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL,
		LastSeenAt: p.LastSeenAtMs,
	}, nil
}

// CreateUser registers a directory profile and returns it.
func (c *Client) CreateUser(ctx context.Context, displayName, avatarURL string) (*store.User, error) {
	var p userPayload
	body := map[string]any{"display_name": displayName, "avatar_url": avatarURL}
	if err := c.do(ctx, http.MethodPost, "/api/users", body, &p); err != nil {
		return nil, err
	}
	return &store.User{ID: p.ID, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL}, nil
}

// RecordLastSeen records an approximate last-active timestamp for a user.
func (c *Client) RecordLastSeen(ctx context.Context, userID string, at time.Time) error {
	body := map[string]any{"at_unix_ms": at.UnixMilli()}
	return c.do(ctx, http.MethodPost, "/api/users/"+userID+"/last-seen", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-User-ID", c.userID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, apperr.ErrTransientNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if terr := apperr.FromHTTPStatus(resp.StatusCode); terr != nil {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("%s %s: %s: %w", method, path, e.Error, terr)
		}
		return fmt.Errorf("%s %s: %w", method, path, terr)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func fromWireList(ws []*feed.WireMessage) []store.Message {
	out := make([]store.Message, 0, len(ws))
	for _, w := range ws {
		out = append(out, *feed.FromWire(w))
	}
	return out
}
