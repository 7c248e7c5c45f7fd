package server

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/classchat/classchat/internal/stats"
	"github.com/classchat/classchat/internal/store"
)

// DefaultRoom is where connections land when the client never names a
// room. The value is part of the wire contract with existing clients.
const DefaultRoom = "Каб 104"

const defaultHistoryLimit = 50

type shutdownReq struct {
	done chan struct{}
}

// ChatServer is the connection lifecycle coordinator. A single Run
// goroutine owns every state transition: registration, room changes,
// message fan-out, typing state and disconnects. Handlers run to
// completion before the next queued event is processed.
type ChatServer struct {
	log         *log.Logger
	store       store.MessageRepository
	stats       stats.StatsProvider
	registry    *Registry
	defaultRoom string

	clients     map[string]*Client
	clientsLock sync.Mutex

	// typing tracks (room, username) pairs currently typing. Owned by
	// the Run loop; cleared on message, leave, room switch and
	// disconnect. Removal is otherwise client-driven via stopTyping.
	typing map[string]map[string]struct{}

	RegisterChan   chan *Client
	DeRegisterChan chan *Client
	eventChan      chan *ClientEvent
	// presenceChan defers roster broadcasts one loop tick past the
	// registry write that triggered them, so the roster is always
	// computed from committed state.
	presenceChan chan string
	stop         chan shutdownReq
	done         chan struct{}
}

func NewChatServer(logger *log.Logger, repo store.MessageRepository, su stats.StatsProvider, registry *Registry, defaultRoom string) (*ChatServer, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if defaultRoom == "" {
		defaultRoom = DefaultRoom
	}

	cs := &ChatServer{
		log:            logger,
		store:          repo,
		stats:          su,
		registry:       registry,
		defaultRoom:    defaultRoom,
		clients:        make(map[string]*Client),
		typing:         make(map[string]map[string]struct{}),
		RegisterChan:   make(chan *Client),
		DeRegisterChan: make(chan *Client),
		eventChan:      make(chan *ClientEvent, 256),
		presenceChan:   make(chan string, 256),
		stop:           make(chan shutdownReq),
		done:           make(chan struct{}),
	}

	su.RegisterMetric("NumActiveConnections")
	su.RegisterMetric("NumMessages")
	su.RegisterMetric("NumTypingEvents")
	su.RegisterMetric("NumHistoryRequests")

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.RegisterChan:
			cs.handleRegister(client)
		case client := <-cs.DeRegisterChan:
			cs.handleDeRegister(client)
		case ev := <-cs.eventChan:
			cs.handleEvent(ev)
		case room := <-cs.presenceChan:
			cs.broadcastPresence(room)
		case req := <-cs.stop:
			cs.log.Println("stopping connections")
			cs.clientsLock.Lock()
			for _, c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.Unlock()

			close(cs.done)
			close(req.done)
			return
		}
	}
}

// Register hands a freshly upgraded connection to the Run loop.
func (cs *ChatServer) Register(c *Client) {
	select {
	case cs.RegisterChan <- c:
	case <-cs.done:
	}
}

// DeRegister removes a connection after its read pump exits.
func (cs *ChatServer) DeRegister(c *Client) {
	select {
	case cs.DeRegisterChan <- c:
	case <-cs.done:
	}
}

// Dispatch queues a validated client event for the Run loop. Delivery is
// non-blocking; a full queue is reported back to the sender.
func (cs *ChatServer) Dispatch(ev *ClientEvent) {
	select {
	case cs.eventChan <- ev:
	case <-cs.done:
	default:
		cs.log.Println("event queue full, rejecting event")
		ev.client.queueEvent(ErrServiceUnavailable(ev.Id))
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	req := shutdownReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleEvent runs one command to completion. A panic in a handler is
// contained here: the event is dropped and the process (and every other
// connection) keeps going.
func (cs *ChatServer) handleEvent(ev *ClientEvent) {
	defer func() {
		if r := recover(); r != nil {
			cs.log.Printf("handler panic: %v", r)
		}
	}()

	switch {
	case ev.JoinRoom != nil:
		cs.handleJoinRoom(ev)
	case ev.LeaveRoom != nil:
		cs.handleLeaveRoom(ev)
	case ev.GetHistory != nil:
		cs.handleGetHistory(ev)
	case ev.Message != nil:
		cs.handleMessage(ev)
	case ev.Typing != nil:
		cs.handleTyping(ev, ev.Typing, false)
	case ev.StopTyping != nil:
		cs.handleTyping(ev, ev.StopTyping, true)
	}
}

func (cs *ChatServer) handleRegister(c *Client) {
	room := c.room
	if room == "" {
		room = cs.defaultRoom
	}

	cs.addClient(c)
	cs.registry.AddOrUpdate(c.id, c.user.Username, room)
	cs.stats.Incr("NumActiveConnections")
	cs.log.Printf("connection %q joined room %q (%d online)", c.id, room, cs.registry.CountByRoom(room))

	// The roster is recomputed when the broadcast is dequeued, never
	// from state captured before the registry write above.
	cs.schedulePresence(room)
}

func (cs *ChatServer) handleDeRegister(c *Client) {
	cs.removeClient(c)

	entry, ok := cs.registry.Remove(c.id)
	if !ok {
		return
	}

	cs.stats.Decr("NumActiveConnections")
	cs.clearTyping(entry.Room, entry.Username)
	cs.log.Printf("connection %q disconnected from room %q", c.id, entry.Room)
	cs.schedulePresence(entry.Room)
}

func (cs *ChatServer) handleJoinRoom(ev *ClientEvent) {
	c := ev.client
	entry, ok := cs.registry.Get(c.id)
	if !ok {
		cs.log.Printf("join from unregistered connection %q", c.id)
		c.queueEvent(ErrInvalidRequest(ev.Id, "connection is not registered"))
		return
	}

	username := entry.Username
	if ev.JoinRoom.User != nil && ev.JoinRoom.User.Username != "" {
		username = ev.JoinRoom.User.Username
	}

	oldRoom := entry.Room
	newRoom := ev.JoinRoom.Room

	// A connection is in exactly one room: joining replaces the old
	// membership rather than accumulating a second one.
	cs.registry.AddOrUpdate(c.id, username, newRoom)
	cs.clearTyping(oldRoom, entry.Username)

	c.queueEvent(AckRoom(ev.Id, newRoom))

	cs.schedulePresence(newRoom)
	if oldRoom != "" && oldRoom != newRoom {
		cs.schedulePresence(oldRoom)
	}
}

func (cs *ChatServer) handleLeaveRoom(ev *ClientEvent) {
	c := ev.client
	room := ev.LeaveRoom.Room

	if entry, ok := cs.registry.Get(c.id); ok {
		cs.registry.AddOrUpdate(c.id, entry.Username, "")
		cs.clearTyping(room, entry.Username)
	}

	c.queueEvent(AckRoom(ev.Id, room))
	cs.schedulePresence(room)
}

func (cs *ChatServer) handleGetHistory(ev *ClientEvent) {
	room := ev.GetHistory.Room
	if room == "" {
		room = cs.defaultRoom
	}

	limit := ev.GetHistory.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	cs.stats.Incr("NumHistoryRequests")

	messages, err := cs.store.RoomHistory(room, limit)
	if err != nil {
		cs.log.Printf("history for room %q: %v", room, err)
		ev.client.queueEvent(NewHistoryErrorEvent(ev.Id))
		return
	}

	ev.client.queueEvent(NewHistoryEvent(ev.Id, room, messages))
}

func (cs *ChatServer) handleMessage(ev *ClientEvent) {
	room := ev.Message.Room
	if room == "" {
		room = cs.defaultRoom
	}

	msg, err := cs.store.SaveMessage(store.SaveMessageParams{
		Content:  ev.Message.Content,
		Username: ev.Message.Username,
		Room:     room,
	})
	if err != nil {
		cs.log.Println("error saving message:", err)
		ev.client.queueEvent(ErrPersistenceFailure(ev.Id))
		return
	}

	cs.stats.Incr("NumMessages")
	cs.clearTyping(room, ev.Message.Username)

	ev.client.queueEvent(AckMessage(ev.Id, msg))

	// broadcast the stored message, with repository id and timestamp
	cs.broadcast(room, NewMessageEvent(msg))
}

func (cs *ChatServer) handleTyping(ev *ClientEvent, state *TypingState, stopped bool) {
	if stopped {
		cs.clearTyping(state.Room, state.Username)
	} else {
		cs.setTyping(state.Room, state.Username)
	}

	cs.stats.Incr("NumTypingEvents")

	notice := &TypingNotice{
		Username:  state.Username,
		Room:      state.Room,
		Timestamp: Now(),
	}

	out := &ServerEvent{Timestamp: Now()}
	if stopped {
		out.StopTyping = notice
	} else {
		out.Typing = notice
	}

	cs.broadcast(state.Room, out)
}

// schedulePresence queues a full-roster broadcast for the room. If the
// queue is full the roster is broadcast inline; the registry write that
// triggered it has already committed either way.
func (cs *ChatServer) schedulePresence(room string) {
	if room == "" {
		return
	}

	select {
	case cs.presenceChan <- room:
	default:
		cs.broadcastPresence(room)
	}
}

func (cs *ChatServer) broadcastPresence(room string) {
	if room == "" {
		return
	}

	cs.broadcast(room, NewRosterEvent(cs.registry.ListByRoom(room)))
}

// broadcast delivers the event to every connection currently in the
// room. Delivery is fire-and-forget per connection; one full send queue
// never aborts delivery to the rest.
func (cs *ChatServer) broadcast(room string, ev *ServerEvent) {
	for _, member := range cs.registry.ListByRoom(room) {
		c, ok := cs.getClient(member.Id)
		if !ok {
			continue
		}

		c.queueEvent(ev)
	}
}

func (cs *ChatServer) setTyping(room, username string) {
	if room == "" || username == "" {
		return
	}

	if cs.typing[room] == nil {
		cs.typing[room] = make(map[string]struct{})
	}
	cs.typing[room][username] = struct{}{}
}

func (cs *ChatServer) clearTyping(room, username string) {
	users, ok := cs.typing[room]
	if !ok {
		return
	}

	delete(users, username)
	if len(users) == 0 {
		delete(cs.typing, room)
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c.id] = c
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c.id)
}

func (cs *ChatServer) getClient(id string) (*Client, bool) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	c, ok := cs.clients[id]
	return c, ok
}
