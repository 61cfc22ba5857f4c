package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/locbyt/valetd/internal/observability/logger"
	"go.uber.org/zap"
)

const streamKeepAliveInterval = 25 * time.Second

// StreamOrderEvents serves a server-sent-events feed of order lifecycle
// notifications. Observers only see events published after they attach;
// a subscriber that stops draining its buffer is disconnected.
func (s *Server) StreamOrderEvents(c *gin.Context) {
	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrInternal)
		return
	}

	sub := s.hub.Subscribe()
	defer sub.Close()

	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	s.obsMetrics.RecordStreamSubscribed(ctx, 1)
	defer s.obsMetrics.RecordStreamSubscribed(ctx, -1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(streamKeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case n, open := <-sub.Events():
			if !open {
				// The hub closed us out for falling behind.
				s.obsMetrics.RecordStreamDropped(ctx)
				log.Warn("stream subscriber dropped: buffer full")
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				log.Error("stream marshal failed", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Event, data)
			flusher.Flush()
		}
	}
}
