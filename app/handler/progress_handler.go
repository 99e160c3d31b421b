package handler

import (
	"net/http"
	"time"

	"modelmine/internal/model"
	"modelmine/internal/service"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Dashboards are served from other origins
	},
}

// ProgressHandler streams job progress over WebSocket and SSE
type ProgressHandler struct {
	jobService  *service.JobService
	broadcaster interfaces.ProgressBroadcaster
}

// NewProgressHandler creates progress handler
func NewProgressHandler(jobService *service.JobService, broadcaster interfaces.ProgressBroadcaster) *ProgressHandler {
	return &ProgressHandler{jobService: jobService, broadcaster: broadcaster}
}

// WebSocket streams one job's events, starting with a snapshot of the stored job
// @Summary Job progress (WebSocket)
// @Tags jobs
// @Param id path string true "Job ID"
// @Router /jobs/{id}/ws [get]
func (h *ProgressHandler) WebSocket(c *gin.Context) {
	jobID := c.Param("id")

	sub := h.broadcaster.Subscribe(jobID)
	defer sub.Close()

	job, err := h.jobService.Get(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, "open progress stream", err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to upgrade to websocket: %v", err)
		return
	}
	defer ws.Close()

	// Reading is required to process control frames; it ends when the client goes away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	relay(model.SnapshotEvent(job), sub, gone, func(event model.ProgressEvent) error {
		ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return ws.WriteJSON(event)
	})

	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// Events streams one job's events as server-sent events
// @Summary Job progress (SSE)
// @Tags jobs
// @Param id path string true "Job ID"
// @Router /jobs/{id}/events [get]
func (h *ProgressHandler) Events(c *gin.Context) {
	jobID := c.Param("id")

	sub := h.broadcaster.Subscribe(jobID)
	defer sub.Close()

	job, err := h.jobService.Get(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, "open progress stream", err)
		return
	}

	relay(model.SnapshotEvent(job), sub, c.Request.Context().Done(), sseSender(c))
}

// AllEvents streams the events of every job until the client disconnects
func (h *ProgressHandler) AllEvents(c *gin.Context) {
	sub := h.broadcaster.Subscribe(interfaces.WildcardTopic)
	defer sub.Close()

	send := sseSender(c)
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := send(event); err != nil {
				return
			}
		}
	}
}

func sseSender(c *gin.Context) func(model.ProgressEvent) error {
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	return func(event model.ProgressEvent) error {
		c.SSEvent("progress", event)
		c.Writer.Flush()
		return c.Request.Context().Err()
	}
}

// relay sends the snapshot, then live events until a terminal event, a send
// error or done. Live events behind the snapshot's progress are skipped.
func relay(snapshot model.ProgressEvent, sub interfaces.ProgressSubscription, done <-chan struct{}, send func(model.ProgressEvent) error) {
	if err := send(snapshot); err != nil || snapshot.IsTerminal() {
		return
	}

	last := 0
	if snapshot.Progress != nil {
		last = *snapshot.Progress
	}
	for {
		select {
		case <-done:
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if !event.IsTerminal() && event.Progress != nil && *event.Progress < last {
				continue
			}
			if err := send(event); err != nil {
				return
			}
			if event.Progress != nil {
				last = *event.Progress
			}
			if event.IsTerminal() {
				return
			}
		}
	}
}
