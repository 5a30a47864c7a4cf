package server

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/coursehub/classchat/internal/database"
	"github.com/coursehub/classchat/internal/stats"
)

var (
	ErrAccessDenied = errors.New("access denied")
	ErrRoomNotFound = errors.New("room not found")
)

type unloadRoomRequest struct {
	roomId  string
	deleted bool
	done    chan struct{}
}

// ChatServer owns the registry of loaded rooms and the set of live
// sessions. Rooms are loaded on first join and unloaded when idle; the
// registry holds no durable state.
type ChatServer struct {
	log            *log.Logger
	db             database.ClassChatRepository
	stats          stats.StatsProvider
	joinChan       chan *joinRequest
	unloadRoomChan chan unloadRoomRequest
	rooms          map[string]*Room
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	stop           chan chan struct{}
}

func NewChatServer(logger *log.Logger, db database.ClassChatRepository, st stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          st,
		joinChan:       make(chan *joinRequest, 256),
		unloadRoomChan: make(chan unloadRoomRequest, 256),
		rooms:          make(map[string]*Room),
		clients:        make(map[*Client]struct{}),
		stop:           make(chan chan struct{}),
	}

	for _, m := range []string{stats.ActiveConnections, stats.ActiveRooms, stats.MessagesPersisted, stats.DroppedDeliveries} {
		st.RegisterMetric(m)
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case join := <-cs.joinChan:
			cs.handleJoin(join)
		case req := <-cs.unloadRoomChan:
			cs.handleUnloadRoom(req)
		case done := <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				exitDone := make(chan struct{})
				r.exit <- exitReq{done: exitDone}
				<-exitDone
			}
			cs.rooms = make(map[string]*Room)

			close(done)
			return
		}
	}
}

func (cs *ChatServer) handleJoin(join *joinRequest) {
	room, ok := cs.rooms[join.client.roomId]
	if !ok {
		dbRoom, err := cs.db.GetRoomByExternalId(join.client.roomId)
		if err != nil || !dbRoom.IsActive {
			join.done <- ErrRoomNotFound
			return
		}

		room = cs.loadRoom(dbRoom)
	}

	select {
	case room.joinChan <- join:
	case <-room.done:
		// the room unloaded underneath us, answer rather than hang
		join.done <- ErrRoomNotFound
	}
}

func (cs *ChatServer) loadRoom(dbRoom database.Room) *Room {
	room := &Room{
		id:         dbRoom.Id,
		externalId: dbRoom.ExternalId,
		cs:         cs,
		joinChan:   make(chan *joinRequest, 64),
		leaveChan:  make(chan *Client, 256),
		frameChan:  make(chan *inboundFrame, 256),
		clients:    make(map[*Client]struct{}),
		userMap:    make(map[int]map[*Client]struct{}),
		log:        cs.log,
		exit:       make(chan exitReq),
		done:       make(chan struct{}),
	}

	cs.rooms[room.externalId] = room
	go room.start()

	return room
}

func (cs *ChatServer) handleUnloadRoom(req unloadRoomRequest) {
	r, ok := cs.rooms[req.roomId]
	if !ok {
		if req.done != nil {
			close(req.done)
		}
		return
	}

	delete(cs.rooms, req.roomId)
	exitDone := make(chan struct{})
	r.exit <- exitReq{deleted: req.deleted, done: exitDone}
	<-exitDone

	if req.done != nil {
		close(req.done)
	}
}

// Join registers the session with its room, loading the room if needed.
// It returns ErrAccessDenied or ErrRoomNotFound when the session must
// be rejected.
func (cs *ChatServer) Join(ctx context.Context, c *Client) error {
	join := &joinRequest{client: c, done: make(chan error, 1)}

	select {
	case cs.joinChan <- join:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-join.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UnloadRoom evicts a loaded room, kicking its sessions when the room
// was deleted or deactivated.
func (cs *ChatServer) UnloadRoom(ctx context.Context, roomId string, deleted bool) error {
	done := make(chan struct{})
	select {
	case cs.unloadRoomChan <- unloadRoomRequest{roomId: roomId, deleted: deleted, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
	cs.stats.Incr(stats.ActiveConnections)
}

func (cs *ChatServer) DeregisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	if _, ok := cs.clients[c]; ok {
		delete(cs.clients, c)
		cs.stats.Decr(stats.ActiveConnections)
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.conn.Close()
	}
	cs.clientsLock.Unlock()

	done := make(chan struct{})
	select {
	case cs.stop <- done:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
