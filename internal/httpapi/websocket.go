package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsSink writes log events as JSON text frames.
type wsSink struct {
	conn *websocket.Conn
}

func (w *wsSink) Line(line string) error {
	return w.write(map[string]string{"log_line": line})
}

func (w *wsSink) Error(msg string) error {
	return w.write(map[string]string{"error": msg})
}

func (w *wsSink) write(event map[string]string) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(event)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}

// handleJobLog streams a job's log over a websocket. The client must answer
// pings; a missed pong ends the session.
func (s *Server) handleJobLog(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if !s.jobsEnabled {
		closeWith(conn, websocket.ClosePolicyViolation, jobsDisabledMsg)
		return
	}

	sink := &wsSink{conn: conn}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		_ = sink.Error(fmt.Sprintf("Job %s does not exist", c.Param("id")))
		closeWith(conn, websocket.CloseNormalClosure, "")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pongWait := 2 * s.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go s.ping(ctx, conn)

	if err := s.logs.Stream(ctx, id, sink); err != nil && ctx.Err() == nil {
		s.logger.Warn("Log stream failed", "job", id, "error", err)
		_ = sink.Error(err.Error())
	}
	closeWith(conn, websocket.CloseNormalClosure, "")
}

func (s *Server) ping(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
