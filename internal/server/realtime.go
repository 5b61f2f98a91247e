package server

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/paperless/backend/internal/documents"
	"github.com/gin-gonic/gin"
)

const (
	RealtimeEventDocumentSaved   = "document-saved"
	RealtimeEventDocumentDeleted = "document-deleted"
	realtimeEventHeartbeat       = "heartbeat"
	realtimeSource               = "paperless-backend"
	defaultHeartbeatInterval     = 25 * time.Second
	subscriberBufferSize         = 16
)

// RealtimeMessage tells one user's open tabs that documents changed.
type RealtimeMessage struct {
	UserID      string
	EventType   string
	DocumentIDs []string
	Timestamp   time.Time
}

type realtimePayload struct {
	DocumentIDs []string `json:"documentIds"`
	Timestamp   int64    `json:"timestampMs"`
	Source      string   `json:"source"`
}

// RealtimeDispatcher fans document changes out to the owner's subscribers. It implements
// documents.Notifier. Slow subscribers drop messages instead of blocking publishers.
type RealtimeDispatcher struct {
	clock func() time.Time

	mu          sync.RWMutex
	subscribers map[string]map[int64]chan RealtimeMessage
	nextID      int64
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		clock:       time.Now,
		subscribers: make(map[string]map[int64]chan RealtimeMessage),
	}
}

// Subscribe registers a stream for userID until ctx ends or the returned cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		closed := make(chan RealtimeMessage)
		close(closed)
		return closed, func() {}
	}
	stream := make(chan RealtimeMessage, subscriberBufferSize)

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	if d.subscribers[userID] == nil {
		d.subscribers[userID] = make(map[int64]chan RealtimeMessage)
	}
	d.subscribers[userID][id] = stream
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unsubscribe(userID, id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = d.clock()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, stream := range d.subscribers[message.UserID] {
		select {
		case stream <- message:
		default:
		}
	}
}

// DocumentSaved publishes a save to the document owner.
func (d *RealtimeDispatcher) DocumentSaved(doc documents.Document) {
	d.Publish(RealtimeMessage{
		UserID:      doc.OwnerID,
		EventType:   RealtimeEventDocumentSaved,
		DocumentIDs: []string{doc.ID},
		Timestamp:   doc.UpdatedAt,
	})
}

// SubscriberCount returns the number of open streams for userID.
func (d *RealtimeDispatcher) SubscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) unsubscribe(userID string, id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscribers := d.subscribers[userID]
	if subscribers == nil {
		return
	}
	delete(subscribers, id)
	if len(subscribers) == 0 {
		delete(d.subscribers, userID)
	}
}

func (h *httpHandler) handleDocumentStream(c *gin.Context) {
	principal := principalFrom(c)
	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), principal.UID)
	defer cleanup()
	if h.metrics != nil {
		h.metrics.realtimeStreams.Inc()
		defer h.metrics.realtimeStreams.Dec()
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.SSEvent(realtimeEventHeartbeat, realtimePayload{Timestamp: h.clock().UnixMilli(), Source: realtimeSource})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimePayload{
				DocumentIDs: message.DocumentIDs,
				Timestamp:   message.Timestamp.UnixMilli(),
				Source:      realtimeSource,
			})
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimePayload{Timestamp: h.clock().UnixMilli(), Source: realtimeSource})
			return true
		}
	})
}
