package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rivulet-chat/rivulet/internal/bus"
	"github.com/rivulet-chat/rivulet/internal/dm"
	"github.com/rivulet-chat/rivulet/internal/hub"
	"github.com/rivulet-chat/rivulet/internal/store"
	apperr "github.com/rivulet-chat/rivulet/pkg/errors"
	"go.uber.org/zap"
)

// userHeader carries the caller's identity. Authentication itself is
// delegated to whatever fronts the daemon; the API trusts this assertion.
const userHeader = "X-User-ID"

// Handler bundles the API's collaborators.
type Handler struct {
	db       *store.DB
	bus      *bus.Bus
	resolver *dm.Resolver
	hub      *hub.Hub
	logger   *zap.Logger
}

// NewHandler creates the API handler set.
func NewHandler(db *store.DB, b *bus.Bus, resolver *dm.Resolver, h *hub.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{db: db, bus: b, resolver: resolver, hub: h, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", func(c *gin.Context) {
		h.hub.ServeWS(c.Writer, c.Request)
	})

	v1 := r.Group("/api")
	{
		v1.POST("/users", h.createUser)
		v1.GET("/users/:id", h.getUser)
		v1.POST("/users/:id/last-seen", h.recordLastSeen)

		v1.POST("/channels", h.createGroupChannel)
		v1.GET("/channels/:id", h.getChannel)
		v1.POST("/channels/:id/members", h.joinChannel)
		v1.DELETE("/channels/:id/members/:userID", h.leaveChannel)

		v1.POST("/channels/:id/messages", h.createMessage)
		v1.GET("/channels/:id/messages", h.listMessages)
		v1.GET("/messages/:id/replies", h.listThreadReplies)

		v1.POST("/dm", h.resolveDM)
	}

	return r
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// callerID extracts the asserted identity, or aborts with 400.
func callerID(c *gin.Context) (string, bool) {
	id := c.GetHeader(userHeader)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": userHeader + " header required"})
		return "", false
	}
	return id, true
}

func respondErr(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
}
