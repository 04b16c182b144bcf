package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/learnhub/internal/realtime"
	appErrors "github.com/charlesng35/learnhub/pkg/errors"
	"github.com/charlesng35/learnhub/pkg/logger"
	"github.com/charlesng35/learnhub/pkg/response"
)

// RealtimeHandler upgrades authenticated viewers onto the realtime hub. It
// runs behind middleware.StreamAuth.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs the websocket endpoint.
func NewRealtimeHandler(hub *realtime.Hub) (*RealtimeHandler, error) {
	if hub == nil {
		return nil, errors.New("realtime handler: hub is required")
	}
	return &RealtimeHandler{hub: hub}, nil
}

// Stream serves GET /api/realtime. Streams are chosen with repeated
// ?stream= parameters or a comma separated ?streams= list and default to
// the notification stream.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	viewer, ok := viewerFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	streams := requestedStreams(c)
	if len(streams) == 0 {
		streams = []string{realtime.StreamNotifications}
	}

	err := h.hub.Serve(c.Writer, c.Request, realtime.Session{UserID: viewer.ID, Streams: streams})
	switch {
	case err == nil:
	case errors.Is(err, realtime.ErrHubClosed):
		response.Error(c, appErrors.ErrUnavailable.WithMessage("realtime is shutting down"))
	case errors.Is(err, appErrors.ErrUnknownStream):
		response.Error(c, err)
	default:
		logger.WithModule("realtime").Warn("serve websocket", zap.String("user_id", viewer.ID), zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
	}
}

func requestedStreams(c *gin.Context) []string {
	streams := c.QueryArray("stream")
	if list := c.Query("streams"); list != "" {
		streams = append(streams, strings.Split(list, ",")...)
	}
	return realtime.NormalizeStreams(streams)
}
