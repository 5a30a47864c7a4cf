package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/coursehub/classchat/internal/stats"
	"github.com/coursehub/classchat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 256
)

// Client is one live websocket session for one identity in one room.
type Client struct {
	sessionId  string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	stats      stats.StatsProvider
	user       types.User
	roomId     string
	send       chan *ServerFrame
	room       *Room
	roomLock   sync.RWMutex
	stop       chan struct{}
	closeOnce  sync.Once
}

func NewClient(user types.User, roomId string, conn *websocket.Conn, cs *ChatServer, l *log.Logger, st stats.StatsProvider) *Client {
	return &Client{
		sessionId:  uuid.NewString(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		stats:      st,
		user:       user,
		roomId:     roomId,
		send:       make(chan *ServerFrame, sendQueueSize),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("session %s: write exiting", c.sessionId)
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(frame)
			if err != nil {
				c.log.Println("failed to serialize frame:", err)
				continue
			}

			if !c.writeFrame(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("session %s: read exiting", c.sessionId)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.queueFrame(ErrInvalidFormat())
			continue
		}

		if frame.Type == "" {
			frame.Type = FrameTypeMessage
		}

		switch frame.Type {
		case FrameTypeMessage, FrameTypeTyping, FrameTypeMessageRead:
			c.dispatch(frame)
		default:
			// unrecognized kinds are reported to the sender only
			c.queueFrame(ErrInvalidFormat())
		}
	}
}

// dispatch hands an inbound frame to the room's router.
func (c *Client) dispatch(frame ClientFrame) {
	r := c.getRoom()
	if r == nil {
		c.queueFrame(ErrServiceUnavailable())
		return
	}

	select {
	case r.frameChan <- &inboundFrame{frame: frame, client: c}:
	default:
		c.log.Printf("frame channel full for room %q", r.externalId)
		c.queueFrame(ErrServiceUnavailable())
	}
}

// queueFrame enqueues an outbound frame, dropping it if the session's
// queue is full so one slow consumer never stalls a broadcast.
func (c *Client) queueFrame(frame *ServerFrame) bool {
	select {
	case c.send <- frame:
	default:
		c.log.Printf("session %s: send queue full, dropping frame", c.sessionId)
		c.stats.Incr(stats.DroppedDeliveries)
		return false
	}

	return true
}

func (c *Client) writeFrame(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write frame: %s", err)
		}
		return false
	}

	return true
}

// cleanup runs the Joined -> Closed transition exactly once, whether
// triggered by the client disconnecting or by a server-side kick.
func (c *Client) cleanup() {
	c.closeOnce.Do(func() {
		if r := c.getRoom(); r != nil {
			select {
			case r.leaveChan <- c:
			case <-r.done:
			}
		}

		c.chatServer.DeregisterClient(c)
		close(c.stop)
	})
}

func (c *Client) setRoom(r *Room) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()
	c.room = r
}

func (c *Client) getRoom() *Room {
	c.roomLock.RLock()
	defer c.roomLock.RUnlock()
	return c.room
}
