package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/common/logger"
	v1 "github.com/compeek/compeek/pkg/api/v1"
	ws "github.com/compeek/compeek/pkg/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send small control requests
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Requests are authenticated by BearerAuth before the upgrade.
		return true
	},
}

// wsStreamRun replays a run's stored events and then follows it live.
// WS /api/runs/:id/stream?after=N
func (h *Handlers) wsStreamRun(c *gin.Context) {
	id := c.Param("id")
	after, ok := afterSeq(c)
	if !ok {
		return
	}
	if _, err := h.manager.Get(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	sub, err := h.manager.Subscribe(c.Request.Context(), id, after)
	if err != nil {
		h.writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		h.logger.Error("failed to upgrade connection", zap.String("run_id", id), zap.Error(err))
		return
	}

	client := newStreamClient(id, conn, sub, h.manager, h.logger)
	client.lastSeq = after
	client.logger.Info("run stream connected", zap.Int("after", after), zap.Int("replay", len(sub.Replay)))
	go client.writePump()
	go client.readPump()
}

// streamClient is one websocket following one run. writePump is the only
// writer on conn.
type streamClient struct {
	runID      string
	conn       *websocket.Conn
	sub        *Subscription
	manager    *Manager
	dispatcher *ws.Dispatcher
	replies    chan *ws.Message
	done       chan struct{}
	closeOnce  sync.Once
	lastSeq    int
	logger     *logger.Logger
}

func newStreamClient(runID string, conn *websocket.Conn, sub *Subscription, manager *Manager, log *logger.Logger) *streamClient {
	c := &streamClient{
		runID:      runID,
		conn:       conn,
		sub:        sub,
		manager:    manager,
		dispatcher: ws.NewDispatcher(),
		replies:    make(chan *ws.Message, 16),
		done:       make(chan struct{}),
		logger: log.WithRunID(runID).WithFields(
			zap.String("client_id", uuid.New().String())),
	}
	c.dispatcher.RegisterFunc(ws.ActionHealthCheck, c.handleHealthCheck)
	c.dispatcher.RegisterFunc(ws.ActionRunStop, c.handleStop)
	return c
}

func (c *streamClient) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sub.Close()
	})
}

// readPump handles control requests until the peer goes away.
func (c *streamClient) readPump() {
	defer c.shutdown()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("run stream read error", zap.Error(err))
			}
			return
		}

		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(ws.NewError("", "", ws.ErrorCodeBadRequest, "Invalid message format", nil))
			continue
		}
		c.logger.Debug("received message", zap.String("action", msg.Action), zap.String("id", msg.ID))
		c.reply(c.dispatcher.Dispatch(context.Background(), &msg))
	}
}

func (c *streamClient) reply(msg *ws.Message, err error) {
	if err != nil {
		c.logger.Error("failed to build reply", zap.Error(err))
		return
	}
	if msg == nil {
		return
	}
	select {
	case c.replies <- msg:
	default:
		c.logger.Warn("reply buffer full")
	}
}

func (c *streamClient) handleHealthCheck(_ context.Context, msg *ws.Message) (*ws.Message, error) {
	return ws.NewResponse(msg.ID, msg.Action, gin.H{"status": "ok"})
}

func (c *streamClient) handleStop(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	err := c.manager.Stop(ctx, c.runID)
	switch {
	case err == nil:
		return ws.NewResponse(msg.ID, msg.Action, gin.H{"id": c.runID, "stopping": true})
	case errors.Is(err, ErrRunFinished):
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeConflict, err.Error(), nil)
	case errors.Is(err, ErrRunNotFound):
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeNotFound, err.Error(), nil)
	}
	return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeInternalError, err.Error(), nil)
}

// writePump sends the replay, then live events and replies, with pings in
// between. When the run ends it sends a final run.status and closes.
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
		_ = c.conn.Close()
	}()

	for _, ev := range c.sub.Replay {
		if err := c.writeEvent(ev); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-c.sub.Events:
			if !ok {
				c.flushReplies()
				if c.sub.Dropped() {
					c.closeSlow()
				} else {
					c.finish()
				}
				return
			}
			if err := c.writeEvent(ev); err != nil {
				return
			}
		case msg := <-c.replies:
			if err := c.write(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// flushReplies writes replies already queued so they precede run.status.
func (c *streamClient) flushReplies() {
	for {
		select {
		case msg := <-c.replies:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *streamClient) writeEvent(ev *v1.Event) error {
	msg, err := ws.NewNotification(ws.ActionRunEvent, ev)
	if err != nil {
		return err
	}
	if err := c.write(msg); err != nil {
		return err
	}
	c.lastSeq = ev.Seq
	return nil
}

func (c *streamClient) write(msg *ws.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// finish sends the run's current record and a normal close frame.
func (c *streamClient) finish() {
	select {
	case <-c.done:
		return
	default:
	}
	run, err := c.manager.Get(context.Background(), c.runID)
	if err != nil {
		c.logger.Error("failed to load run for final status", zap.Error(err))
	} else if msg, err := ws.NewNotification(ws.ActionRunStatus, run); err == nil {
		if err := c.write(msg); err != nil {
			return
		}
		c.logger.Debug("run stream finished", zap.String("status", string(run.Status)))
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
}

// closeSlow ends a stream whose subscriber fell behind the live feed. The
// run is still going, so no final status is sent.
func (c *streamClient) closeSlow() {
	c.logger.Warn("run stream dropped slow subscriber", zap.Int("last_seq", c.lastSeq))
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseTryAgainLater, slowCloseReason(c.lastSeq)))
}

func slowCloseReason(lastSeq int) string {
	return fmt.Sprintf("subscriber too slow; reconnect with ?after=%d", lastSeq)
}
