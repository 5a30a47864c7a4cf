package server

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/coursehub/classchat/internal/database"
	"github.com/coursehub/classchat/internal/stats"
)

const idleRoomTimeout = time.Minute

type exitReq struct {
	deleted bool
	done    chan struct{}
}

type joinRequest struct {
	client *Client
	done   chan error
}

// Room is the runtime actor for one chat room: it owns the set of live
// sessions and routes every inbound frame sequentially, which is what
// gives per-room fan-out ordering.
type Room struct {
	id         int
	externalId string
	cs         *ChatServer
	joinChan   chan *joinRequest
	leaveChan  chan *Client
	frameChan  chan *inboundFrame
	clients    map[*Client]struct{}
	userMap    map[int]map[*Client]struct{}
	clientLock sync.RWMutex
	log        *log.Logger
	// killTimer unloads the room once it has been empty for a while
	killTimer *time.Timer
	exit      chan exitReq
	done      chan struct{}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.externalId)
	r.cs.stats.Incr(stats.ActiveRooms)
	r.killTimer = time.NewTimer(idleRoomTimeout)

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case client := <-r.leaveChan:
			r.handleLeave(client)
		case inf := <-r.frameChan:
			switch inf.frame.Type {
			case FrameTypeMessage:
				r.handleMessage(inf)
			case FrameTypeTyping:
				r.handleTyping(inf)
			case FrameTypeMessageRead:
				r.handleMessageRead(inf)
			}
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

// handleJoin authorizes the session against the membership store and,
// on success, registers it and announces it to the rest of the room.
func (r *Room) handleJoin(join *joinRequest) {
	r.killTimer.Stop()

	c := join.client
	allowed, err := r.cs.db.AuthorizeMember(c.user.Id, r.id)
	if err != nil {
		r.log.Println("AuthorizeMember:", err)
		r.resetTimerIfEmpty()
		join.done <- err
		return
	}
	if !allowed {
		r.log.Printf("denied %q access to room %q", c.user.Username, r.externalId)
		r.resetTimerIfEmpty()
		join.done <- ErrAccessDenied
		return
	}

	r.addClient(c)
	c.setRoom(r)
	join.done <- nil

	r.broadcast(UserJoinedFrame(c.user.Username, c.user.Id), c, 0)
}

func (r *Room) handleLeave(c *Client) {
	if !r.removeClient(c) {
		return
	}

	r.broadcast(UserLeftFrame(c.user.Username, c.user.Id), c, 0)
}

// handleMessage validates, persists and fans out one chat message. The
// message row and the sender's read receipt are written in a single
// transaction by the repository.
func (r *Room) handleMessage(inf *inboundFrame) {
	content := strings.TrimSpace(inf.frame.Message)
	if content == "" {
		inf.client.queueFrame(ErrEmptyMessage())
		return
	}

	var replyTo int
	if inf.frame.ReplyTo != nil {
		replyTo = *inf.frame.ReplyTo
	}

	msg, err := r.cs.db.CreateMessage(database.CreateMessageParams{
		RoomId:    r.id,
		SenderId:  inf.client.user.Id,
		Content:   content,
		ReplyToId: replyTo,
	})
	if err != nil {
		r.log.Println("CreateMessage:", err)
		inf.client.queueFrame(ErrInternalError())
		return
	}

	r.cs.stats.Incr(stats.MessagesPersisted)

	// everyone sees the message, including the sender's own sessions
	r.broadcast(MessageFrame(msg), nil, 0)
}

// handleTyping fans out a typing indicator to everyone except the
// typing identity's own sessions. Nothing is persisted.
func (r *Room) handleTyping(inf *inboundFrame) {
	r.broadcast(TypingFrame(inf.client.user.Username, inf.frame.IsTyping), nil, inf.client.user.Id)
}

// handleMessageRead records a read receipt. Unknown messages and
// duplicate receipts are no-ops; read state is pull-based, so nothing
// is broadcast.
func (r *Room) handleMessageRead(inf *inboundFrame) {
	if inf.frame.MessageId == 0 {
		return
	}

	if err := r.cs.db.MarkMessageRead(inf.frame.MessageId, inf.client.user.Id, r.id); err != nil {
		r.log.Println("MarkMessageRead:", err)
		inf.client.queueFrame(ErrInternalError())
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.externalId)
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{roomId: r.externalId}:
	default:
		// try again on the next idle period
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.externalId)

	r.clientLock.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	r.clients = make(map[*Client]struct{})
	r.userMap = make(map[int]map[*Client]struct{})
	r.clientLock.Unlock()

	close(r.done)

	// joins queued before the exit won the select must still be
	// answered or their callers block forever
drain:
	for {
		select {
		case join := <-r.joinChan:
			join.done <- ErrRoomNotFound
		default:
			break drain
		}
	}

	for _, c := range clients {
		c.setRoom(nil)
		if e.deleted {
			// the room is gone, kick the session
			c.cleanup()
		}
	}

	r.cs.stats.Decr(stats.ActiveRooms)
	if e.done != nil {
		close(e.done)
	}
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}
}

func (r *Room) removeClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return false
	}

	delete(r.clients, c)
	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}

	r.log.Printf("removed session %s from room %q", c.sessionId, r.externalId)

	if len(r.clients) == 0 {
		r.killTimer.Reset(idleRoomTimeout)
	}

	return true
}

func (r *Room) resetTimerIfEmpty() {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()
	if len(r.clients) == 0 {
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// broadcast fans a frame out to a snapshot of the room's sessions so
// the lock is not held during sends. skipClient suppresses one session,
// skipUserId suppresses every session of that identity.
func (r *Room) broadcast(frame *ServerFrame, skipClient *Client, skipUserId int) {
	r.clientLock.RLock()
	targets := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		if c == skipClient || (skipUserId != 0 && c.user.Id == skipUserId) {
			continue
		}
		targets = append(targets, c)
	}
	r.clientLock.RUnlock()

	for _, c := range targets {
		c.queueFrame(frame)
	}
}
