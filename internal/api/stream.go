package api

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
)

// streamEvents exposes a user's live feed as server-sent events. The
// subscription lasts until the client disconnects or the stream stops.
func (s *Server) streamEvents(c *gin.Context) {
	userID := c.Param("id")

	events, cancel, err := s.orch.StreamBiometricData(userID)
	if err != nil {
		handleServiceError(c, s.logger, err, "failed to open stream")
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				return false
			}
			c.SSEvent(string(ev.Kind), string(payload))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
